package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/example/slot-booker/internal/browser"
	"go.uber.org/zap"
)

// LabelPattern turns a label text into a selector for the input belonging to
// that label.
type LabelPattern struct {
	Name  string
	Build func(label string) browser.Selector
}

var defaultLabelPatterns = []LabelPattern{
	{
		Name: "input-in-label",
		Build: func(label string) browser.Selector {
			return browser.ByXPath(fmt.Sprintf("//label[contains(., %s)]//input", xpathLiteral(label)))
		},
	},
	{
		Name: "input-after-span",
		Build: func(label string) browser.Selector {
			return browser.ByXPath(fmt.Sprintf("//span[contains(., %s)]/following::input[1]", xpathLiteral(label)))
		},
	},
}

// FillReport lists what the filler could and could not do. Missing fields
// never fail an attempt.
type FillReport struct {
	Filled      []FieldName
	Missing     []FieldName
	RepeatEmail bool
	Consent     bool
}

// FormFiller populates the applicant form.
type FormFiller struct {
	Form        browser.Selector
	Patterns    []LabelPattern
	RepeatEmail browser.Selector
	Consent     browser.Selector
	WaitTimeout time.Duration
	Log         *zap.Logger
}

func NewFormFiller(waitTimeout time.Duration, log *zap.Logger) *FormFiller {
	if log == nil {
		log = zap.NewNop()
	}
	return &FormFiller{
		Form:        browser.ByCSS("form"),
		Patterns:    defaultLabelPatterns,
		RepeatEmail: browser.ByXPath("//input[@name='email2'] | //label[contains(., 'Wiederholung')]//input"),
		Consent:     browser.ByXPath("//input[@type='checkbox' and contains(@name, 'datenschutz')]"),
		WaitTimeout: waitTimeout,
		Log:         log,
	}
}

// Fill waits for the form and then writes every profile field it can locate.
func (f *FormFiller) Fill(ctx context.Context, page browser.Page, profile Profile) (FillReport, error) {
	var rep FillReport
	if _, err := browser.WaitForAny(ctx, page, f.WaitTimeout, f.Form); err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return rep, errors.Wrapf(ErrFormNotFound, "after %s", f.WaitTimeout)
		}
		return rep, err
	}

	for _, field := range profile.Fields() {
		input, err := f.FindField(page, field)
		if err != nil {
			f.Log.Warn("form field skipped", zap.String("field", string(field.Name)), zap.Error(err))
			rep.Missing = append(rep.Missing, field.Name)
			continue
		}
		if err := setValue(input, field.Value); err != nil {
			return rep, errors.Wrapf(err, "fill %s", field.Name)
		}
		rep.Filled = append(rep.Filled, field.Name)

		if field.Name == FieldEmail {
			rep.RepeatEmail = f.mirrorEmail(page, field.Value)
		}
	}

	rep.Consent = f.acceptConsent(page)
	return rep, nil
}

// FindField returns the first visible input over every candidate label and
// label pattern, in that order.
func (f *FormFiller) FindField(page browser.Page, field Field) (browser.Element, error) {
	var strategies []Strategy
	for _, label := range field.CandidateLabels() {
		for _, p := range f.Patterns {
			strategies = append(strategies, Strategy{
				Name:     p.Name + ":" + label,
				Selector: p.Build(label),
			})
		}
	}
	els, _, err := resolveVisible(page, strategies)
	if len(els) == 0 {
		if err != nil {
			return nil, errors.WithSecondaryError(errors.Wrapf(ErrFieldNotFound, "%s", field.Name), err)
		}
		return nil, errors.Wrapf(ErrFieldNotFound, "%s", field.Name)
	}
	return els[0], nil
}

func (f *FormFiller) mirrorEmail(page browser.Page, email string) bool {
	els, err := page.FindAll(f.RepeatEmail)
	if err != nil || len(els) == 0 {
		f.Log.Debug("no repeat email field", zap.Error(err))
		return false
	}
	if err := setValue(els[0], email); err != nil {
		f.Log.Warn("repeat email not filled", zap.Error(err))
		return false
	}
	return true
}

func (f *FormFiller) acceptConsent(page browser.Page) bool {
	els, err := page.FindAll(f.Consent)
	if err != nil || len(els) == 0 {
		f.Log.Debug("no consent checkbox", zap.Error(err))
		return false
	}
	box := els[0]
	checked, err := box.Checked()
	if err != nil {
		f.Log.Warn("consent checkbox state unknown", zap.Error(err))
		return false
	}
	if checked {
		return true
	}
	if err := box.Click(); err != nil {
		f.Log.Warn("consent checkbox not clicked", zap.Error(err))
		return false
	}
	return true
}

func setValue(el browser.Element, value string) error {
	if err := el.Clear(); err != nil {
		return errors.Wrap(err, "clear")
	}
	if err := el.Type(value); err != nil {
		return errors.Wrap(err, "type")
	}
	return nil
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Submitter clicks the form's submit control.
type Submitter struct {
	Control browser.Selector
}

func NewSubmitter() *Submitter {
	return &Submitter{Control: browser.ByXPath("//input[@type='submit'] | //button[@type='submit']")}
}

func (s *Submitter) Submit(page browser.Page) error {
	els, err := page.FindAll(s.Control)
	if err != nil {
		return errors.WithSecondaryError(errors.Wrapf(ErrSubmitNotFound, "%s", s.Control), err)
	}
	if len(els) == 0 {
		return errors.Wrapf(ErrSubmitNotFound, "%s", s.Control)
	}
	if err := els[0].Click(); err != nil {
		return errors.Wrap(err, "click submit")
	}
	return nil
}
