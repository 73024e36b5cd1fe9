package browser

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

// ErrWaitTimeout is returned by WaitUntil when the condition never held.
var ErrWaitTimeout = errors.New("browser: wait timed out")

// PollInterval is the pause between two evaluations of a wait condition.
var PollInterval = 250 * time.Millisecond

var errNotYet = errors.New("condition not met")

// WaitUntil evaluates cond immediately and then every PollInterval until it
// reports true or timeout elapses. Errors from cond are treated like a false
// result, pages are often mid-render while we poll.
func WaitUntil(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last error
	op := func() error {
		ok, err := cond()
		if err != nil {
			last = err
			return err
		}
		if !ok {
			last = nil
			return errNotYet
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(PollInterval), wctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if last != nil {
		return errors.WithSecondaryError(errors.Wrapf(ErrWaitTimeout, "after %s", timeout), last)
	}
	return errors.Wrapf(ErrWaitTimeout, "after %s", timeout)
}

// WaitForAny waits until at least one of the selectors matches an element and
// returns the matches of the first selector that did.
func WaitForAny(ctx context.Context, page Page, timeout time.Duration, sels ...Selector) ([]Element, error) {
	var found []Element
	err := WaitUntil(ctx, timeout, func() (bool, error) {
		for _, sel := range sels {
			els, err := page.FindAll(sel)
			if err != nil {
				return false, err
			}
			if len(els) > 0 {
				found = els
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
