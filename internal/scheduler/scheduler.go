package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/example/slot-booker/internal/booking"
	"go.uber.org/zap"
)

type Attempter interface {
	Attempt(ctx context.Context) booking.Outcome
}

// Deactivator stops the external trigger that re-invokes the booker.
type Deactivator interface {
	Deactivate(ctx context.Context) error
}

// Journal persists attempts. Failures to record are logged and ignored.
type Journal interface {
	Record(ctx context.Context, runID string, n int, startedAt, finishedAt time.Time, out booking.Outcome) error
}

type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	return booking.SleepContext(ctx, d)
}

// Jitter draws pauses uniformly from [Min, Max]. The randomness only keeps
// the request pattern irregular for the target site.
type Jitter struct {
	Min, Max time.Duration
	// Int64N returns a value in [0, n); defaults to math/rand.Int63n.
	Int64N func(n int64) int64
}

func (j Jitter) Next() time.Duration {
	span := int64(j.Max - j.Min)
	if span <= 0 {
		return j.Min
	}
	draw := rand.Int63n
	if j.Int64N != nil {
		draw = j.Int64N
	}
	return j.Min + time.Duration(draw(span+1))
}

// State describes one Run. It lives only as long as the process.
type State struct {
	RunID       string
	StartedAt   time.Time
	Budget      time.Duration
	Attempts    int
	Last        booking.Outcome
	Booked      bool
	Deactivated bool
}

// Scheduler repeats booking attempts until one succeeds or the budget is
// spent. The budget is only checked before an attempt starts, so a run can
// last up to Budget plus one attempt.
type Scheduler struct {
	Attempter   Attempter
	Deactivator Deactivator
	Journal     Journal

	Budget time.Duration
	Pause  Jitter
	Clock  Clock
	RunID  string

	// DeactivateTimeout bounds the trigger shutdown call. Default: 30s.
	DeactivateTimeout time.Duration

	Log *zap.Logger

	deactivateOnce sync.Once
}

// Run returns a nil error both when a slot was booked and when the budget
// ran out; only cancellation of ctx between attempts is reported.
func (s *Scheduler) Run(ctx context.Context) (State, error) {
	log := s.logger()
	clock := s.Clock
	if clock == nil {
		clock = realClock{}
	}

	st := State{RunID: s.RunID, StartedAt: clock.Now(), Budget: s.Budget}
	deadline := st.StartedAt.Add(s.Budget)
	log.Info("scheduler: starting", zap.Duration("budget", s.Budget), zap.Time("deadline", deadline))

	for clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		st.Attempts++
		started := clock.Now()
		// Attempts are never cut short; cancellation is honoured between them.
		out := s.Attempter.Attempt(context.WithoutCancel(ctx))
		st.Last = out
		s.record(ctx, st, started, clock.Now(), out)

		if out.Success {
			st.Booked = true
			log.Info("scheduler: slot booked",
				zap.Int("attempt", st.Attempts),
				zap.String("url", out.URL),
				zap.String("marker", out.Verdict.Marker))
			st.Deactivated = s.deactivate(ctx)
			return st, nil
		}

		pause := s.Pause.Next()
		log.Info("scheduler: attempt failed",
			zap.Int("attempt", st.Attempts),
			zap.String("step", string(out.Step)),
			zap.NamedError("reason", out.Reason),
			zap.Duration("pause", pause))

		// Sleeping past the deadline would only end at a failing loop-top check.
		if !clock.Now().Add(pause).Before(deadline) {
			break
		}
		if err := clock.Sleep(ctx, pause); err != nil {
			return st, err
		}
	}

	log.Info("scheduler: budget exhausted, no slot booked yet",
		zap.Int("attempts", st.Attempts),
		zap.Duration("elapsed", clock.Now().Sub(st.StartedAt)))
	return st, nil
}

// deactivate calls the Deactivator at most once per Scheduler. Its failure
// never changes the booking result.
func (s *Scheduler) deactivate(ctx context.Context) bool {
	log := s.logger()
	done := false
	s.deactivateOnce.Do(func() {
		if s.Deactivator == nil {
			log.Warn("scheduler: no deactivator configured, disable the trigger manually")
			return
		}
		timeout := s.DeactivateTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := s.Deactivator.Deactivate(dctx); err != nil {
			log.Error("scheduler: trigger deactivation failed, booking stands", zap.Error(err))
			return
		}
		done = true
	})
	return done
}

func (s *Scheduler) record(ctx context.Context, st State, started, finished time.Time, out booking.Outcome) {
	if s.Journal == nil {
		return
	}
	if err := s.Journal.Record(context.WithoutCancel(ctx), st.RunID, st.Attempts, started, finished, out); err != nil {
		s.logger().Warn("scheduler: journal write failed", zap.Error(err))
	}
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
