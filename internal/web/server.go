package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/slot-booker/internal/attempts"
	"github.com/example/slot-booker/internal/auth"
	"github.com/example/slot-booker/internal/db"
)

//go:embed templates/*.html
var fs embed.FS

// Journal is the read side of the attempt journal.
type Journal interface {
	ListRecent(ctx context.Context, limit int) ([]attempts.Attempt, error)
	ListRun(ctx context.Context, runID string) ([]attempts.Attempt, error)
	Summary(ctx context.Context) (attempts.Summary, error)
}

// Server is the read-only operator dashboard over the attempt journal.
type Server struct {
	Auth    *auth.Store
	Journal Journal
	Target  string
	Log     *zap.Logger
}

type tmplData struct {
	Title    string
	Operator string
	Flash    string
	Target   string

	Summary  attempts.Summary
	Attempts []attempts.Attempt
	RunID    string
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireAuth)
		r.Get("/", s.handleHome)
		r.Get("/runs/{runID}", s.handleRun)
		r.Get("/api/attempts", s.handleAPIAttempts)
	})
	return r
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	summary, err := s.Journal.Summary(r.Context())
	if err != nil {
		s.fail(w, "summary", err)
		return
	}
	recent, err := s.Journal.ListRecent(r.Context(), 50)
	if err != nil {
		s.fail(w, "list attempts", err)
		return
	}
	s.render(w, http.StatusOK, "templates/attempts.html", tmplData{
		Title:    "Attempts",
		Operator: sess.Username,
		Target:   s.Target,
		Summary:  summary,
		Attempts: recent,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	runID := chi.URLParam(r, "runID")
	list, err := s.Journal.ListRun(r.Context(), runID)
	if err != nil {
		if db.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		s.fail(w, "list run", err)
		return
	}
	if len(list) == 0 {
		http.NotFound(w, r)
		return
	}
	s.render(w, http.StatusOK, "templates/run.html", tmplData{
		Title:    "Run " + runID,
		Operator: sess.Username,
		Target:   s.Target,
		Attempts: list,
		RunID:    runID,
	})
}

type apiAttempt struct {
	RunID      string    `json:"run_id"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	Step       string    `json:"step"`
	Reason     *string   `json:"reason,omitempty"`
	URL        *string   `json:"url,omitempty"`
	Marker     *string   `json:"marker,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Server) handleAPIAttempts(w http.ResponseWriter, r *http.Request) {
	list, err := s.Journal.ListRecent(r.Context(), 200)
	if err != nil {
		s.fail(w, "list attempts", err)
		return
	}
	out := make([]apiAttempt, 0, len(list))
	for _, a := range list {
		out = append(out, apiAttempt{
			RunID: a.RunID, Attempt: a.Number, Success: a.Success, Step: a.Step,
			Reason: a.Reason, URL: a.URL, Marker: a.Marker,
			StartedAt: a.StartedAt, FinishedAt: a.FinishedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "templates/login.html", tmplData{Title: "Login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	id, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
	if err != nil {
		s.logger().Info("web: login rejected", zap.String("username", username), zap.Error(err))
		s.render(w, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
		return
	}
	if err := s.Auth.SetSession(w, r, auth.Session{OperatorID: id, Username: username}); err != nil {
		s.fail(w, "set session", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	s.logger().Error("web: "+what, zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

var funcs = template.FuncMap{
	"deref": func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	},
	"ts": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	"shortID": func(id string) string {
		if len(id) > 8 {
			return id[:8]
		}
		return id
	},
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(fs, "templates/base.html", name)
	if err != nil {
		s.fail(w, "parse template", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.logger().Error("web: render", zap.String("template", name), zap.Error(err))
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("web: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Start serves h until ctx is cancelled.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("web: listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
