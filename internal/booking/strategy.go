package booking

import (
	"github.com/cockroachdb/errors"
	"github.com/example/slot-booker/internal/browser"
)

// Strategy is one entry of a fallback chain.
type Strategy struct {
	Name     string
	Selector browser.Selector
}

// resolveVisible evaluates strategies in order and returns the visible
// matches of the first strategy that has any. Later strategies are not
// queried once one wins, and results are never mixed across strategies.
// The returned error is only meaningful when nothing was found: it carries
// the lookup failures seen along the way.
func resolveVisible(page browser.Page, strategies []Strategy) ([]browser.Element, Strategy, error) {
	var errs error
	for _, s := range strategies {
		els, err := page.FindAll(s.Selector)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "strategy %s", s.Name))
			continue
		}
		if visible := visibleOnly(els); len(visible) > 0 {
			return visible, s, nil
		}
	}
	return nil, Strategy{}, errs
}

func visibleOnly(els []browser.Element) []browser.Element {
	var out []browser.Element
	for _, el := range els {
		ok, err := el.Visible()
		if err != nil || !ok {
			continue
		}
		out = append(out, el)
	}
	return out
}
