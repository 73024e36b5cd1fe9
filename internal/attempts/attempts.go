package attempts

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/example/slot-booker/internal/booking"
	"github.com/example/slot-booker/internal/db"
)

// Attempt is one journal row.
type Attempt struct {
	ID         int64
	RunID      string
	Number     int
	Success    bool
	Step       string
	Reason     *string
	URL        *string
	Marker     *string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (a Attempt) Duration() time.Duration { return a.FinishedAt.Sub(a.StartedAt) }

type Summary struct {
	Runs        int
	Attempts    int
	Successes   int
	LastSuccess *time.Time
}

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

// NewRunID returns the identifier used to group the attempts of one
// scheduler run.
func NewRunID() string { return uuid.NewString() }

func (r *Repo) Record(ctx context.Context, runID string, n int, startedAt, finishedAt time.Time, out booking.Outcome) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return errors.Wrapf(err, "attempts: run id %q", runID)
	}

	var reason, url, marker *string
	if out.Reason != nil {
		s := out.Reason.Error()
		reason = &s
	}
	if out.URL != "" {
		url = &out.URL
	}
	if out.Verdict.Marker != "" {
		marker = &out.Verdict.Marker
	}

	err = r.db.Exec(ctx, `
INSERT INTO booking_attempts(run_id, attempt, success, step, reason, final_url, marker, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, n, out.Success, string(out.Step), reason, url, marker, startedAt, finishedAt)
	return errors.Wrap(err, "attempts: record")
}

const selectColumns = `SELECT id, run_id::text, attempt, success, step, reason, final_url, marker, started_at, finished_at FROM booking_attempts`

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, selectColumns+` ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "attempts: list")
	}
	return scanAll(rows)
}

func (r *Repo) ListRun(ctx context.Context, runID string) ([]Attempt, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, errors.Wrapf(db.ErrNotFound, "attempts: run id %q", runID)
	}
	rows, err := r.db.Query(ctx, selectColumns+` WHERE run_id=$1 ORDER BY attempt`, id)
	if err != nil {
		return nil, errors.Wrap(err, "attempts: list run")
	}
	return scanAll(rows)
}

// LastSuccess returns the most recent successful attempt or db.ErrNotFound.
func (r *Repo) LastSuccess(ctx context.Context) (Attempt, error) {
	rows, err := r.db.Query(ctx, selectColumns+` WHERE success ORDER BY finished_at DESC LIMIT 1`)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "attempts: last success")
	}
	out, err := scanAll(rows)
	if err != nil {
		return Attempt{}, err
	}
	if len(out) == 0 {
		return Attempt{}, db.ErrNotFound
	}
	return out[0], nil
}

func (r *Repo) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.db.QueryRow(ctx, `
SELECT count(DISTINCT run_id), count(*), count(*) FILTER (WHERE success), max(finished_at) FILTER (WHERE success)
FROM booking_attempts`).Scan(&s.Runs, &s.Attempts, &s.Successes, &s.LastSuccess)
	if err != nil {
		return Summary{}, db.WrapNotFound(err)
	}
	return s, nil
}

func scanAll(rows db.Rows) ([]Attempt, error) {
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.RunID, &a.Number, &a.Success, &a.Step, &a.Reason, &a.URL, &a.Marker, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "attempts: scan")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "attempts: rows")
}
