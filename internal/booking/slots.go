package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/example/slot-booker/internal/browser"
	"go.uber.org/zap"
)

// CSS selectors of the calendar page. The HTTP pre-flight check reads the
// same ones.
const (
	DateCellCSS = "td.monatevent a"
	TimeSlotCSS = "table.termine a, span.bl1b"
)

// SlotLocator picks the earliest bookable date and then the earliest time on
// the calendar page. Document order is chronological order on the target
// site, so "earliest" is always the first match.
type SlotLocator struct {
	DateCells browser.Selector

	// TimeStrategies cover the table and list renderings of the slot page.
	TimeStrategies []Strategy
	// TimeFallback is waited for when no strategy finds a visible slot.
	TimeFallback []browser.Selector

	WaitTimeout time.Duration
	Log         *zap.Logger
}

func NewSlotLocator(waitTimeout time.Duration, log *zap.Logger) *SlotLocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &SlotLocator{
		DateCells: browser.ByCSS(DateCellCSS),
		TimeStrategies: []Strategy{
			{Name: "termine-table", Selector: browser.ByXPath("//table[@class='termine']//a")},
			{Name: "bl1b-span", Selector: browser.ByXPath("//span[@class='bl1b']/parent::a")},
		},
		TimeFallback: []browser.Selector{browser.ByCSS(TimeSlotCSS)},
		WaitTimeout:  waitTimeout,
		Log:          log,
	}
}

// SelectDate clicks the first open date cell.
func (l *SlotLocator) SelectDate(ctx context.Context, page browser.Page) error {
	dates, err := browser.WaitForAny(ctx, page, l.WaitTimeout, l.DateCells)
	if err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return errors.Wrapf(ErrNoDatesAvailable, "%s", l.DateCells)
		}
		return err
	}
	l.Log.Info("open dates found", zap.Int("count", len(dates)))
	if err := dates[0].Click(); err != nil {
		return errors.Wrap(err, "click earliest date")
	}
	return nil
}

// SelectTime clicks the first visible time slot of the first strategy that
// finds one, falling back to a bounded wait.
func (l *SlotLocator) SelectTime(ctx context.Context, page browser.Page) error {
	slots, s, lookupErr := resolveVisible(page, l.TimeStrategies)
	if len(slots) == 0 {
		if lookupErr != nil {
			l.Log.Debug("time strategies failed", zap.Error(lookupErr))
		}
		var err error
		slots, err = browser.WaitForAny(ctx, page, l.WaitTimeout, l.TimeFallback...)
		if err != nil {
			if errors.Is(err, browser.ErrWaitTimeout) {
				return errors.Wrapf(ErrNoSlotsAvailable, "after %s", l.WaitTimeout)
			}
			return err
		}
		s = Strategy{Name: "fallback-wait"}
	}
	l.Log.Info("time slots found", zap.Int("count", len(slots)), zap.String("strategy", s.Name))
	if err := slots[0].Click(); err != nil {
		return errors.Wrap(err, "click earliest time slot")
	}
	return nil
}
