// Package browser is the driver boundary of the booking engine. The engine
// only sees Page and Element; the go-rod implementation lives in rod.go and
// test code substitutes in-memory pages.
package browser

import (
	"context"
	"fmt"
)

// Kind tells a Page how to evaluate a selector expression.
type Kind int

const (
	CSS Kind = iota
	XPath
)

func (k Kind) String() string {
	if k == XPath {
		return "xpath"
	}
	return "css"
}

type Selector struct {
	Kind Kind
	Expr string
}

func ByCSS(expr string) Selector   { return Selector{Kind: CSS, Expr: expr} }
func ByXPath(expr string) Selector { return Selector{Kind: XPath, Expr: expr} }

func (s Selector) String() string { return fmt.Sprintf("%s(%s)", s.Kind, s.Expr) }

type Element interface {
	Visible() (bool, error)
	Click() error
	// Clear empties a text control's current value.
	Clear() error
	Type(text string) error
	// Checked reports the checked state of a checkbox or radio control.
	Checked() (bool, error)
}

// Page is one browser tab. FindAll never waits: an empty result with a nil
// error means nothing matches right now.
type Page interface {
	Navigate(url string) error
	FindAll(sel Selector) ([]Element, error)
	BodyText() (string, error)
	URL() (string, error)
	// Close releases the tab and the browser process behind it.
	Close() error
}

// Launcher opens a fresh, isolated session. Each call must return a page that
// shares no cookies or storage with earlier ones.
type Launcher interface {
	Open(ctx context.Context) (Page, error)
}
