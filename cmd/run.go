package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/slot-booker/internal/attempts"
	"github.com/example/slot-booker/internal/config"
	"github.com/example/slot-booker/internal/db"
	"github.com/example/slot-booker/internal/scheduler"
)

func newRunCmd() *cobra.Command {
	var (
		migrateUp bool
		force     bool
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Try to book a slot until one is confirmed or the time budget is spent",
		Long: `run repeats booking attempts against APPOINTMENT_URL. After a confirmed
booking it disables the GitHub Actions workflow that keeps invoking it.
It exits 0 both after a booking and after the budget ran out; only
configuration and startup errors make it fail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			launcher := newLauncher(cfg, log)
			defer func() { _ = launcher.Close() }()
			deps := bookingDeps{Launcher: launcher}
			var history successLookup
			if d, journal := openJournal(ctx, cfg, log, migrateUp); d != nil {
				defer d.Close()
				deps.Journal = journal
				history = journal
			}
			_, err = runBooking(ctx, cfg, log, deps, history, force)
			return err
		},
	}

	c.Flags().BoolVar(&migrateUp, "migrate", true, "apply journal migrations when DATABASE_URL is set")
	c.Flags().BoolVar(&force, "force", false, "run even if the journal already holds a confirmed booking")
	return c
}

type successLookup interface {
	LastSuccess(ctx context.Context) (attempts.Attempt, error)
}

// runBooking performs one scheduler run. Cancellation between attempts ends
// the run without an error.
func runBooking(ctx context.Context, cfg config.Config, log *zap.Logger, deps bookingDeps, history successLookup, force bool) (scheduler.State, error) {
	s, err := newScheduler(cfg, log, deps)
	if err != nil {
		return scheduler.State{}, err
	}

	if history != nil && !force {
		last, err := history.LastSuccess(ctx)
		switch {
		case err == nil:
			log.Warn("journal already holds a confirmed booking, not booking again; disable the trigger or pass --force",
				zap.String("run_id", last.RunID),
				zap.Time("booked_at", last.FinishedAt))
			return scheduler.State{}, nil
		case !db.IsNotFound(err):
			log.Warn("journal lookup failed, continuing", zap.Error(err))
		}
	}

	st, err := s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("run interrupted", zap.Int("attempts", st.Attempts))
		return st, nil
	}
	if err != nil {
		return st, err
	}
	log.Info("run finished",
		zap.Bool("booked", st.Booked),
		zap.Bool("trigger_disabled", st.Deactivated),
		zap.Int("attempts", st.Attempts),
		zap.Stringer("last", st.Last))
	return st, nil
}
