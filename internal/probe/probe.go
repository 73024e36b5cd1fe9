package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/example/slot-booker/internal/booking"
)

var ErrFetch = errors.New("probe: fetch failed")

const maxBody = 4 << 20

// Date is one bookable day cell of the calendar.
type Date struct {
	Label string
	Href  string
}

// Report describes what a plain HTTP fetch of the target page shows. Pages
// that build their calendar with script may report nothing even when the
// browser would find slots.
type Report struct {
	URL        string
	StatusCode int
	Title      string
	Dates      []Date
	Slots      int
	HasForm    bool
	FetchedAt  time.Time
}

func (r Report) Available() bool { return len(r.Dates) > 0 || r.Slots > 0 }

type Prober struct {
	HTTPClient *http.Client
	UserAgent  string
	Log        *zap.Logger
}

func New(log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Log:        log,
	}
}

func (p *Prober) Check(ctx context.Context, target string) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Report{}, errors.Mark(errors.Wrapf(err, "probe: request %s", target), ErrFetch)
	}
	req.Header.Set("User-Agent", p.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return Report{}, errors.Mark(errors.Wrapf(err, "probe: get %s", target), ErrFetch)
	}
	defer resp.Body.Close()

	rep := Report{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, FetchedAt: time.Now()}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rep, errors.Mark(errors.Newf("probe: %s returned %d", target, resp.StatusCode), ErrFetch)
	}

	if err := Parse(io.LimitReader(resp.Body, maxBody), &rep); err != nil {
		return rep, err
	}
	p.Log.Debug("probe: parsed",
		zap.String("url", rep.URL),
		zap.Int("dates", len(rep.Dates)),
		zap.Int("slots", rep.Slots),
		zap.Bool("form", rep.HasForm))
	return rep, nil
}

// Parse fills the calendar fields of rep from an HTML document.
func Parse(r io.Reader, rep *Report) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return errors.Wrap(err, "probe: parse html")
	}
	rep.Title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(booking.DateCellCSS).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		rep.Dates = append(rep.Dates, Date{
			Label: strings.Join(strings.Fields(s.Text()), " "),
			Href:  href,
		})
	})
	rep.Slots = doc.Find(booking.TimeSlotCSS).Length()
	rep.HasForm = doc.Find("form input").Length() > 0
	return nil
}
