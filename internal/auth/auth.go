package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slot-booker/internal/db"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	cookieName = "slotbooker_session"
	sessionTTL = 14 * 24 * time.Hour
)

// Store authenticates dashboard operators and keeps their sessions in a
// signed and encrypted cookie.
type Store struct {
	sc *securecookie.SecureCookie
	db db.Querier
}

type ctxKey string

const operatorKey ctxKey = "operator"

func NewStore(q db.Querier, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, db: q}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (s *Store) CreateOperator(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("auth: username is empty")
	}
	if len(password) < 8 {
		return errors.New("auth: password must have at least 8 characters")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "auth: hash password")
	}
	return errors.Wrapf(
		s.db.Exec(ctx, `INSERT INTO operators(username, password_bcrypt) VALUES ($1,$2)`, username, hash),
		"auth: create operator %q", username)
}

// Authenticate returns the operator id. Unknown users and wrong passwords
// both yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, username, password string) (int64, error) {
	var id int64
	var hash string
	err := s.db.QueryRow(ctx, `SELECT id, password_bcrypt FROM operators WHERE username=$1`, username).Scan(&id, &hash)
	if err != nil {
		if db.IsNotFound(err) {
			return 0, ErrInvalidCredentials
		}
		return 0, db.WrapNotFound(err)
	}
	if !CheckPassword(hash, password) {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

type Session struct {
	OperatorID int64
	Username   string
	IssuedAt   int64
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, sess Session) error {
	if sess.IssuedAt == 0 {
		sess.IssuedAt = time.Now().Unix()
	}
	encoded, err := s.sc.Encode(cookieName, sess)
	if err != nil {
		return errors.Wrap(err, "auth: encode session")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil {
		return Session{}, false
	}
	if sess.OperatorID <= 0 {
		return Session{}, false
	}
	return sess, true
}

func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey, sess)))
	})
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(operatorKey).(Session)
	return sess, ok
}
