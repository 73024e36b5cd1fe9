package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slot-booker/internal/attempts"
	"github.com/example/slot-booker/internal/auth"
	"github.com/example/slot-booker/internal/db"
)

const runA = "3f2b8c1e-5a44-4e0b-9a54-1f1f0c2d7e10"

type fakeJournal struct {
	list []attempts.Attempt
	err  error
}

func (f *fakeJournal) ListRecent(context.Context, int) ([]attempts.Attempt, error) {
	return f.list, f.err
}

func (f *fakeJournal) ListRun(_ context.Context, runID string) ([]attempts.Attempt, error) {
	var out []attempts.Attempt
	for _, a := range f.list {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	return out, f.err
}

func (f *fakeJournal) Summary(context.Context) (attempts.Summary, error) {
	s := attempts.Summary{Runs: 1, Attempts: len(f.list)}
	for _, a := range f.list {
		if a.Success {
			s.Successes++
			t := a.FinishedAt
			s.LastSuccess = &t
		}
	}
	return s, f.err
}

type opRow struct {
	hash string
	err  error
}

func (r opRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = 1
	*dest[1].(*string) = r.hash
	return nil
}

type operators struct{ hash string }

func (o operators) Exec(context.Context, string, ...any) error { return nil }
func (o operators) QueryRow(_ context.Context, _ string, args ...any) db.Row {
	if args[0] != "ops" {
		return opRow{err: pgx.ErrNoRows}
	}
	return opRow{hash: o.hash}
}
func (o operators) Query(context.Context, string, ...any) (db.Rows, error) {
	return nil, errors.New("not used")
}

func strp(s string) *string { return &s }

func newTestServer(t *testing.T, j Journal) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	store := auth.NewStore(operators{hash: string(hash)},
		[]byte("0123456789abcdef0123456789abcdef"), []byte("abcdef0123456789"))
	s := &Server{Auth: store, Journal: j, Target: "https://termine.example.test/"}
	return s.Routes()
}

func sampleJournal() *fakeJournal {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return &fakeJournal{list: []attempts.Attempt{
		{ID: 2, RunID: runA, Number: 2, Success: true, Step: "CLASSIFY_OUTCOME", Marker: strp("Vielen Dank"), StartedAt: start.Add(time.Minute), FinishedAt: start.Add(90 * time.Second)},
		{ID: 1, RunID: runA, Number: 1, Step: "SELECT_DATE", Reason: strp("no dates available"), StartedAt: start, FinishedAt: start.Add(15 * time.Second)},
	}}
}

func login(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {"ops"}, "password": {"s3cret-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func get(h http.Handler, path string, c *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if c != nil {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(newTestServer(t, sampleJournal()), "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestHomeRequiresLogin(t *testing.T) {
	rec := get(newTestServer(t, sampleJournal()), "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLoginForm(t *testing.T) {
	rec := get(newTestServer(t, sampleJournal()), "/login", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/login"`)
}

func TestLoginRejected(t *testing.T) {
	h := newTestServer(t, sampleJournal())
	form := url.Values{"username": {"ops"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username/password")
	assert.Empty(t, rec.Result().Cookies())
}

func TestHomeListsAttempts(t *testing.T) {
	h := newTestServer(t, sampleJournal())
	rec := get(h, "/", login(t, h))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "1 runs, 2 attempts, 1 booked.")
	assert.Contains(t, body, "no dates available")
	assert.Contains(t, body, "Vielen Dank")
	assert.Contains(t, body, "/runs/"+runA)
	assert.Contains(t, body, "signed in as ops")
}

func TestRunPage(t *testing.T) {
	h := newTestServer(t, sampleJournal())
	c := login(t, h)

	rec := get(h, "/runs/"+runA, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "30s")

	rec = get(h, "/runs/00000000-0000-0000-0000-000000000000", c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIAttempts(t *testing.T) {
	h := newTestServer(t, sampleJournal())
	rec := get(h, "/api/attempts", login(t, h))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []apiAttempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].Success)
	assert.Equal(t, "Vielen Dank", *got[0].Marker)
	assert.Nil(t, got[0].Reason)
	assert.Equal(t, "SELECT_DATE", got[1].Step)
}

func TestJournalFailure(t *testing.T) {
	j := sampleJournal()
	h := newTestServer(t, j)
	c := login(t, h)
	j.err = errors.New("connection refused")

	rec := get(h, "/", c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestLogout(t *testing.T) {
	h := newTestServer(t, sampleJournal())
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(login(t, h))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}
