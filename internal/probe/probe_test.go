package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slot-booker/internal/booking"
	"github.com/example/slot-booker/internal/browser"
)

const calendarPage = `<html><head><title> Terminvergabe </title></head><body>
<table class="kalender">
  <tr>
    <td class="monat">1</td>
    <td class="monatevent"><a href="?day=2026-03-04">4
      März</a></td>
    <td class="monatevent"><a href="?day=2026-03-06">6 März</a></td>
  </tr>
</table>
<table class="termine"><tr><td><a href="?slot=1">09:00</a></td><td><a href="?slot=2">09:30</a></td></tr></table>
<span class="bl1b">10:00</span>
</body></html>`

const emptyPage = `<html><head><title>Terminvergabe</title></head><body>
<table class="kalender"><tr><td class="monat">1</td><td class="monat">2</td></tr></table>
<p>Zurzeit sind keine Termine frei.</p></body></html>`

func TestParseCalendar(t *testing.T) {
	var rep Report
	require.NoError(t, Parse(strings.NewReader(calendarPage), &rep))

	assert.Equal(t, "Terminvergabe", rep.Title)
	require.Len(t, rep.Dates, 2)
	assert.Equal(t, Date{Label: "4 März", Href: "?day=2026-03-04"}, rep.Dates[0])
	assert.Equal(t, 3, rep.Slots)
	assert.False(t, rep.HasForm)
	assert.True(t, rep.Available())
}

func TestParseMatchesSlotLocator(t *testing.T) {
	loc := booking.NewSlotLocator(0, nil)
	require.Equal(t, browser.ByCSS(booking.DateCellCSS), loc.DateCells)
	require.Equal(t, []browser.Selector{browser.ByCSS(booking.TimeSlotCSS)}, loc.TimeFallback)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(calendarPage))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, Parse(strings.NewReader(calendarPage), &rep))
	assert.Equal(t, doc.Find(loc.DateCells.Expr).Length(), len(rep.Dates))
	assert.Equal(t, doc.Find(loc.TimeFallback[0].Expr).Length(), rep.Slots)
}

func TestParseEmpty(t *testing.T) {
	var rep Report
	require.NoError(t, Parse(strings.NewReader(emptyPage), &rep))
	assert.Empty(t, rep.Dates)
	assert.Zero(t, rep.Slots)
	assert.False(t, rep.Available())
}

func TestCheck(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(calendarPage))
	}))
	defer srv.Close()

	rep, err := New(nil).Check(context.Background(), srv.URL+"/termine")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rep.StatusCode)
	assert.Equal(t, srv.URL+"/termine", rep.URL)
	assert.Len(t, rep.Dates, 2)
	assert.Contains(t, ua, "Mozilla/5.0")
	assert.False(t, rep.FetchedAt.IsZero())
}

func TestCheckHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rep, err := New(nil).Check(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Equal(t, http.StatusServiceUnavailable, rep.StatusCode)
}

func TestCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	_, err := New(nil).Check(context.Background(), target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}
