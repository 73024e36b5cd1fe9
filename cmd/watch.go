package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/slot-booker/internal/config"
	"github.com/example/slot-booker/internal/scheduler"
)

func newWatchCmd() *cobra.Command {
	var (
		schedule  string
		runNow    bool
		migrateUp bool
	)

	c := &cobra.Command{
		Use:   "watch",
		Short: "Run the booker on a cron schedule in-process until a slot is booked",
		Long: `watch replaces an external scheduler: every tick starts a full run with
its own time budget. Ticks never overlap. After a confirmed booking the
schedule stops, and the GitHub workflow is disabled too when GITHUB_TOKEN
is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()

			trigger := &stopTrigger{stop: stopWatch, log: log}
			if cfg.GitHubToken != "" {
				trigger.next = newWorkflowClient(cfg, log)
			}
			launcher := newLauncher(cfg, log)
			defer func() { _ = launcher.Close() }()
			deps := bookingDeps{Launcher: launcher, Deactivator: trigger}
			if d, journal := openJournal(ctx, cfg, log, migrateUp); d != nil {
				defer d.Close()
				deps.Journal = journal
			}

			// Surface configuration errors before the first tick.
			if _, err := newScheduler(cfg, log, deps); err != nil {
				return err
			}

			w := &watcher{
				build: func() (*scheduler.Scheduler, error) { return newScheduler(cfg, log, deps) },
				log:   log.Named("watch"),
			}

			cl := cronLogger{log.Named("cron").Sugar()}
			cr := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
			id, err := cr.AddFunc(schedule, func() { w.tick(watchCtx) })
			if err != nil {
				return errors.Mark(errors.Wrapf(err, "invalid --schedule %q", schedule), config.ErrConfiguration)
			}
			log.Info("watch: started", zap.String("schedule", schedule), zap.Time("next", cr.Entry(id).Schedule.Next(time.Now())))
			runSchedule(watchCtx, cr, id, runNow)
			log.Info("watch: stopped", zap.Bool("booked", w.booked.Load()))
			return nil
		},
	}

	c.Flags().StringVar(&schedule, "schedule", "*/5 * * * *", "cron expression for runs (5 fields)")
	c.Flags().BoolVar(&runNow, "now", true, "start a run immediately instead of waiting for the first tick")
	c.Flags().BoolVar(&migrateUp, "migrate", true, "apply journal migrations when DATABASE_URL is set")
	return c
}

// runSchedule starts cr, optionally fires entry id right away, and returns
// once ctx is done and every run, including the immediate one, has finished.
func runSchedule(ctx context.Context, cr *cron.Cron, id cron.EntryID, runNow bool) {
	var wg sync.WaitGroup
	cr.Start()
	if runNow {
		job := cr.Entry(id).WrappedJob
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Run()
		}()
	}

	<-ctx.Done()
	<-cr.Stop().Done()
	wg.Wait()
}

// watcher runs one scheduler per tick until a run books a slot.
type watcher struct {
	build  func() (*scheduler.Scheduler, error)
	log    *zap.Logger
	booked atomic.Bool
}

func (w *watcher) tick(ctx context.Context) {
	if w.booked.Load() || ctx.Err() != nil {
		return
	}
	s, err := w.build()
	if err != nil {
		w.log.Error("watch: cannot build run", zap.Error(err))
		return
	}
	st, err := s.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Error("watch: run failed", zap.Error(err))
	}
	if st.Booked {
		w.booked.Store(true)
	}
}

// stopTrigger deactivates the in-process schedule and, when configured, the
// GitHub workflow as well.
type stopTrigger struct {
	stop context.CancelFunc
	next scheduler.Deactivator
	log  *zap.Logger
}

// Deactivate disables the external workflow before it stops the schedule, so
// the process does not exit while that request is in flight.
func (t *stopTrigger) Deactivate(ctx context.Context) error {
	defer func() {
		t.stop()
		t.log.Info("watch: schedule stopped after booking")
	}()
	if t.next == nil {
		return nil
	}
	return t.next.Deactivate(ctx)
}

type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
