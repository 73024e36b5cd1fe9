package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/example/slot-booker/internal/browser"
)

const testWait = 20 * time.Millisecond

func init() {
	browser.PollInterval = 2 * time.Millisecond
}

type fakeElement struct {
	visible  bool
	checkbox bool
	checked  bool
	value    string
	clicks   int
	typeErr  error
	panicOn  bool
	onClick  func()
}

func visible() *fakeElement { return &fakeElement{visible: true} }
func hidden() *fakeElement  { return &fakeElement{} }

func (e *fakeElement) Visible() (bool, error) { return e.visible, nil }

func (e *fakeElement) Click() error {
	if e.panicOn {
		panic("element detached mid-click")
	}
	e.clicks++
	if e.checkbox {
		e.checked = !e.checked
	}
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Clear() error {
	e.value = ""
	return nil
}

func (e *fakeElement) Type(text string) error {
	if e.typeErr != nil {
		return e.typeErr
	}
	e.value += text
	return nil
}

func (e *fakeElement) Checked() (bool, error) { return e.checked, nil }

// fakePage answers FindAll from a map keyed by selector expression and
// counts every lookup.
type fakePage struct {
	elements map[string][]*fakeElement
	failing  map[string]error
	queries  map[string]int

	url       string
	body      string
	navErr    error
	navigated string
	closed    bool
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: map[string][]*fakeElement{},
		failing:  map[string]error{},
		queries:  map[string]int{},
	}
}

func (p *fakePage) add(expr string, els ...*fakeElement) *fakePage {
	p.elements[expr] = append(p.elements[expr], els...)
	return p
}

func (p *fakePage) Navigate(url string) error {
	p.navigated = url
	return p.navErr
}

func (p *fakePage) FindAll(sel browser.Selector) ([]browser.Element, error) {
	p.queries[sel.Expr]++
	if err := p.failing[sel.Expr]; err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, el := range p.elements[sel.Expr] {
		out = append(out, el)
	}
	return out, nil
}

func (p *fakePage) BodyText() (string, error) { return p.body, nil }
func (p *fakePage) URL() (string, error)      { return p.url, nil }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeLauncher struct {
	page  *fakePage
	err   error
	opens int
}

func (l *fakeLauncher) Open(context.Context) (browser.Page, error) {
	l.opens++
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}

var errBrowserGone = errors.New("websocket closed")

// selectors used by the default components, spelled out so tests read like
// the page they describe.
const (
	dateCells    = "td.monatevent a"
	timeTable    = "//table[@class='termine']//a"
	timeSpan     = "//span[@class='bl1b']/parent::a"
	timeFallback = "table.termine a, span.bl1b"
	formTag      = "form"
	repeatEmail  = "//input[@name='email2'] | //label[contains(., 'Wiederholung')]//input"
	consentBox   = "//input[@type='checkbox' and contains(@name, 'datenschutz')]"
	submitButton = "//input[@type='submit'] | //button[@type='submit']"
)

func inLabel(label string) string {
	return "//label[contains(., '" + label + "')]//input"
}

func afterSpan(label string) string {
	return "//span[contains(., '" + label + "')]/following::input[1]"
}
