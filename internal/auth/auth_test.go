package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slot-booker/internal/db"
)

type operatorRow struct {
	id   int64
	hash string
	err  error
}

func (r operatorRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.id
	*dest[1].(*string) = r.hash
	return nil
}

type fakeOperators struct {
	byName map[string]operatorRow
	execs  [][]any
}

func (f *fakeOperators) Exec(_ context.Context, _ string, args ...any) error {
	f.execs = append(f.execs, args)
	return nil
}

func (f *fakeOperators) QueryRow(_ context.Context, _ string, args ...any) db.Row {
	row, ok := f.byName[args[0].(string)]
	if !ok {
		return operatorRow{err: pgx.ErrNoRows}
	}
	return row
}

func (f *fakeOperators) Query(context.Context, string, ...any) (db.Rows, error) {
	return nil, errors.New("not used")
}

func testKeys() ([]byte, []byte) {
	return []byte("0123456789abcdef0123456789abcdef"), []byte("abcdef0123456789")
}

func minCostHash(t *testing.T, pw string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(b)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func TestAuthenticate(t *testing.T) {
	q := &fakeOperators{byName: map[string]operatorRow{
		"ops": {id: 7, hash: minCostHash(t, "s3cret-pass")},
	}}
	store := NewStore(q, nil, nil)

	id, err := store.Authenticate(context.Background(), "ops", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = store.Authenticate(context.Background(), "ops", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.Authenticate(context.Background(), "ghost", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateOperator(t *testing.T) {
	q := &fakeOperators{}
	store := NewStore(q, nil, nil)

	require.NoError(t, store.CreateOperator(context.Background(), " ops ", "long-enough"))
	require.Len(t, q.execs, 1)
	assert.Equal(t, "ops", q.execs[0][0])
	assert.True(t, CheckPassword(q.execs[0][1].(string), "long-enough"))

	assert.Error(t, store.CreateOperator(context.Background(), "", "long-enough"))
	assert.Error(t, store.CreateOperator(context.Background(), "ops", "short"))
	assert.Len(t, q.execs, 1)
}

func TestSessionRoundTrip(t *testing.T) {
	hashKey, blockKey := testKeys()
	store := NewStore(nil, hashKey, blockKey)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	require.NoError(t, store.SetSession(rec, req, Session{OperatorID: 3, Username: "ops"}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	sess, ok := store.GetSession(next)
	require.True(t, ok)
	assert.Equal(t, int64(3), sess.OperatorID)
	assert.Equal(t, "ops", sess.Username)
	assert.NotZero(t, sess.IssuedAt)
}

func TestSessionTampered(t *testing.T) {
	hashKey, blockKey := testKeys()
	store := NewStore(nil, hashKey, blockKey)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "forged"})
	_, ok := store.GetSession(req)
	assert.False(t, ok)
}

func TestRequireAuth(t *testing.T) {
	hashKey, blockKey := testKeys()
	store := NewStore(nil, hashKey, blockKey)
	var seen Session
	h := store.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	login := httptest.NewRecorder()
	require.NoError(t, store.SetSession(login, httptest.NewRequest(http.MethodPost, "/login", nil), Session{OperatorID: 9, Username: "ops"}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(login.Result().Cookies()[0])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(9), seen.OperatorID)
}
