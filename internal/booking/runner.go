package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/example/slot-booker/internal/browser"
	"go.uber.org/zap"
)

// Runner executes one booking attempt against a fresh browser session:
// NAVIGATE, SELECT_DATE, SELECT_TIME, FILL_FORM, SUBMIT, CLASSIFY_OUTCOME.
// It keeps no state between calls.
type Runner struct {
	Launcher   browser.Launcher
	TargetURL  string
	Profile    Profile
	Slots      *SlotLocator
	Form       *FormFiller
	Submitter  *Submitter
	Classifier *Classifier

	// SettleDelay lets the page navigate and render after submitting.
	SettleDelay time.Duration
	// Sleep defaults to a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	Log *zap.Logger
}

// Attempt never panics and never returns an error: every fault ends up as a
// failed Outcome naming the step it happened in.
func (r *Runner) Attempt(ctx context.Context) (out Outcome) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	step := StepNavigate
	defer func() {
		if p := recover(); p != nil {
			out = Failed(step, errors.Wrapf(ErrUnexpected, "panic: %v", p))
		}
	}()

	page, err := r.Launcher.Open(ctx)
	if err != nil {
		return Failed(step, errors.Mark(errors.Wrap(err, "open browser session"), ErrNavigation))
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("browser session not closed cleanly", zap.Error(err))
		}
	}()

	steps := []struct {
		step Step
		run  func() error
	}{
		{StepNavigate, func() error {
			log.Info("navigating", zap.String("url", r.TargetURL))
			if err := page.Navigate(r.TargetURL); err != nil {
				return errors.Mark(err, ErrNavigation)
			}
			return nil
		}},
		{StepSelectDate, func() error { return r.Slots.SelectDate(ctx, page) }},
		{StepSelectTime, func() error { return r.Slots.SelectTime(ctx, page) }},
		{StepFillForm, func() error {
			rep, err := r.Form.Fill(ctx, page, r.Profile)
			if err == nil {
				log.Info("form filled",
					zap.Int("filled", len(rep.Filled)),
					zap.Int("missing", len(rep.Missing)),
					zap.Bool("repeat_email", rep.RepeatEmail),
					zap.Bool("consent", rep.Consent))
			}
			return err
		}},
		{StepSubmit, func() error { return r.Submitter.Submit(page) }},
	}
	for _, s := range steps {
		step = s.step
		if err := s.run(); err != nil {
			return Failed(step, err)
		}
	}

	step = StepClassify
	return r.classify(ctx, page)
}

func (r *Runner) classify(ctx context.Context, page browser.Page) Outcome {
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	if err := sleep(ctx, r.SettleDelay); err != nil {
		return Failed(StepClassify, err)
	}

	url, err := page.URL()
	if err != nil {
		return Failed(StepClassify, errors.Wrap(err, "read current url"))
	}
	if v := r.Classifier.ClassifyURL(url); v.Success {
		return Succeeded(url, v)
	}
	body, err := page.BodyText()
	if err != nil {
		out := Failed(StepClassify, errors.Wrap(err, "read body text"))
		out.URL = url
		return out
	}
	if v := r.Classifier.ClassifyBody(body); v.Success {
		return Succeeded(url, v)
	}
	out := Failed(StepClassify, ErrNotConfirmed)
	out.URL = url
	return out
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
