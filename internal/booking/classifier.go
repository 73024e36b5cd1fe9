package booking

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Markers are the substrings that identify a confirmation page. Matching is
// case-insensitive containment, so a short marker may also match unrelated
// text; that trade is accepted to never miss a real confirmation.
type Markers struct {
	URL  []string `yaml:"url"`
	Body []string `yaml:"body"`
}

func DefaultMarkers() Markers {
	return Markers{
		URL:  []string{"confirm", "bestaetigung"},
		Body: []string{"Bestätigung", "Vielen Dank", "Reference", "Termin-ID", "gebucht"},
	}
}

// LoadMarkers reads a YAML marker file. A list left empty in the file keeps
// its default.
func LoadMarkers(path string) (Markers, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Markers{}, errors.Wrapf(err, "read markers %s", path)
	}
	var m Markers
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Markers{}, errors.Wrapf(err, "parse markers %s", path)
	}
	def := DefaultMarkers()
	if len(m.URL) == 0 {
		m.URL = def.URL
	}
	if len(m.Body) == 0 {
		m.Body = def.Body
	}
	return m, nil
}

// Verdict explains a classification.
type Verdict struct {
	Success bool
	Source  string // "url" or "body"
	Marker  string
}

// Classifier decides from the post-submit page whether a booking went
// through. It holds no state besides the folded markers and is safe for
// concurrent use.
type Classifier struct {
	url  []marker
	body []marker
}

type marker struct {
	raw    string
	folded string
}

func NewClassifier(m Markers) *Classifier {
	return &Classifier{url: foldAll(m.URL), body: foldAll(m.Body)}
}

// Classify checks the URL first and the body text second.
func (c *Classifier) Classify(url, body string) Verdict {
	if v := c.ClassifyURL(url); v.Success {
		return v
	}
	return c.ClassifyBody(body)
}

func (c *Classifier) ClassifyURL(url string) Verdict {
	return match("url", url, c.url)
}

func (c *Classifier) ClassifyBody(body string) Verdict {
	return match("body", body, c.body)
}

func match(source, text string, markers []marker) Verdict {
	if text == "" {
		return Verdict{}
	}
	folded := fold(text)
	for _, m := range markers {
		if strings.Contains(folded, m.folded) {
			return Verdict{Success: true, Source: source, Marker: m.raw}
		}
	}
	return Verdict{}
}

func foldAll(in []string) []marker {
	out := make([]marker, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, marker{raw: s, folded: fold(s)})
	}
	return out
}

// fold uses Unicode case folding so "BESTÄTIGUNG" and "Bestätigung" compare
// equal. A Caser is stateful, hence one per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
