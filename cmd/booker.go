package cmd

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/example/slot-booker/internal/attempts"
	"github.com/example/slot-booker/internal/booking"
	"github.com/example/slot-booker/internal/browser"
	"github.com/example/slot-booker/internal/config"
	"github.com/example/slot-booker/internal/db"
	"github.com/example/slot-booker/internal/migrate"
	"github.com/example/slot-booker/internal/scheduler"
	"github.com/example/slot-booker/internal/workflows"
)

// bookingDeps holds the collaborators of a scheduler. Nil fields are built
// from the configuration.
type bookingDeps struct {
	Launcher    browser.Launcher
	Deactivator scheduler.Deactivator
	Journal     scheduler.Journal
	Clock       scheduler.Clock
}

// newScheduler validates cfg and assembles one scheduler run. It fails with
// config.ErrConfiguration before anything touches the browser.
func newScheduler(cfg config.Config, log *zap.Logger, deps bookingDeps) (*scheduler.Scheduler, error) {
	if err := cfg.RequireTarget(); err != nil {
		return nil, err
	}

	markers := booking.DefaultMarkers()
	if cfg.MarkersFile != "" {
		m, err := booking.LoadMarkers(cfg.MarkersFile)
		if err != nil {
			return nil, errors.Mark(err, config.ErrConfiguration)
		}
		markers = m
	}

	if deps.Launcher == nil {
		deps.Launcher = newLauncher(cfg, log)
	}
	if deps.Deactivator == nil {
		deps.Deactivator = newWorkflowClient(cfg, log)
	}

	a := cfg.Applicant
	runner := &booking.Runner{
		Launcher:    deps.Launcher,
		TargetURL:   cfg.TargetURL,
		Profile:     booking.NewProfile(a.LastName, a.FirstName, a.Birthdate, a.Phone, a.Email),
		Slots:       booking.NewSlotLocator(cfg.WaitTimeout, log.Named("slots")),
		Form:        booking.NewFormFiller(cfg.WaitTimeout, log.Named("form")),
		Submitter:   booking.NewSubmitter(),
		Classifier:  booking.NewClassifier(markers),
		SettleDelay: cfg.SettleDelay,
		Log:         log.Named("attempt"),
	}

	runID := attempts.NewRunID()
	return &scheduler.Scheduler{
		Attempter:   runner,
		Deactivator: deps.Deactivator,
		Journal:     deps.Journal,
		Budget:      cfg.Budget,
		Pause:       scheduler.Jitter{Min: cfg.PauseMin, Max: cfg.PauseMax},
		Clock:       deps.Clock,
		RunID:       runID,
		Log:         log.With(zap.String("run_id", runID)),
	}, nil
}

// newLauncher builds the rod launcher. Callers Close it once no run uses it
// any more, which releases a shared remote browser connection.
func newLauncher(cfg config.Config, log *zap.Logger) *browser.RodLauncher {
	return browser.NewRodLauncher(browser.RodConfig{
		RemoteURL: cfg.BrowserURL,
		Headless:  cfg.Headless,
		Logger:    log.Named("browser"),
	})
}

func newWorkflowClient(cfg config.Config, log *zap.Logger) *workflows.Client {
	return workflows.New(workflows.Config{
		BaseURL:      cfg.GitHubAPIURL,
		Token:        cfg.GitHubToken,
		Repo:         cfg.GitHubRepo,
		WorkflowName: cfg.WorkflowName,
		Log:          log.Named("workflows"),
	})
}

// openJournal connects to DATABASE_URL when one is configured. The journal
// is optional for booking, so an unreachable database only costs the
// history: the caller gets nil and a warning is logged.
func openJournal(ctx context.Context, cfg config.Config, log *zap.Logger, migrateUp bool) (*db.DB, *attempts.Repo) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err == nil {
		err = d.Ping(ctx)
	}
	if err == nil && migrateUp {
		_, err = migrate.Up(ctx, d, log.Named("migrate"))
	}
	if err != nil {
		if d != nil {
			d.Close()
		}
		log.Warn("journal unavailable, attempts are not recorded", zap.Error(err))
		return nil, nil
	}
	return d, attempts.NewRepo(d)
}

// openDatabase is the strict variant for commands that need the database.
func openDatabase(ctx context.Context, cfg config.Config, log *zap.Logger, migrateUp bool) (*db.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if migrateUp {
		if _, err := migrate.Up(ctx, d, log.Named("migrate")); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}
