package booking

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Step names a state of the attempt state machine.
type Step string

const (
	StepNavigate   Step = "NAVIGATE"
	StepSelectDate Step = "SELECT_DATE"
	StepSelectTime Step = "SELECT_TIME"
	StepFillForm   Step = "FILL_FORM"
	StepSubmit     Step = "SUBMIT"
	StepClassify   Step = "CLASSIFY_OUTCOME"
)

var (
	ErrNavigation       = errors.New("navigation failed")
	ErrNoDatesAvailable = errors.New("no dates available")
	ErrNoSlotsAvailable = errors.New("no time slots available")
	ErrFormNotFound     = errors.New("booking form not found")
	ErrSubmitNotFound   = errors.New("submit control not found")
	ErrFieldNotFound    = errors.New("field not found")
	ErrNotConfirmed     = errors.New("no booking confirmation detected")
	ErrUnexpected       = errors.New("unexpected fault")
)

// IsElementResolution reports whether err means the page did not offer the
// element a step needed. These clear up by themselves when slots open.
func IsElementResolution(err error) bool {
	return errors.IsAny(err, ErrNoDatesAvailable, ErrNoSlotsAvailable, ErrFormNotFound, ErrSubmitNotFound)
}

// Outcome is the result of one attempt. A failed Outcome names the step it
// stopped at; a successful one names the marker that confirmed the booking.
type Outcome struct {
	Success bool
	Step    Step
	Reason  error
	URL     string
	Verdict Verdict
}

func Succeeded(url string, v Verdict) Outcome {
	return Outcome{Success: true, Step: StepClassify, URL: url, Verdict: v}
}

func Failed(step Step, reason error) Outcome {
	if reason == nil {
		reason = ErrUnexpected
	}
	return Outcome{Step: step, Reason: reason}
}

func (o Outcome) String() string {
	if o.Success {
		return fmt.Sprintf("success (%s marker %q)", o.Verdict.Source, o.Verdict.Marker)
	}
	return fmt.Sprintf("failure at %s: %v", o.Step, o.Reason)
}
