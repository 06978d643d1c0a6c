package lifecycle

import (
	"errors"
	"fmt"

	"github.com/agrosense/agrosense/internal/domain/models"
)

// ErrAlreadyHarvested is returned when harvest data is recorded twice.
var ErrAlreadyHarvested = errors.New("batch already harvested")

// ErrPredictionUnavailable marks a prediction that could not be obtained.
// It is logged, never returned to callers of RequestPrediction.
var ErrPredictionUnavailable = errors.New("prediction unavailable")

// InvalidDateError reports an unparseable or impossible date input.
type InvalidDateError struct {
	Value  string
	Reason string
	Err    error
}

func (e *InvalidDateError) Error() string {
	msg := fmt.Sprintf("invalid date %q", e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidDateError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports a stage move rejected by the state machine.
type InvalidTransitionError struct {
	From models.Stage
	To   models.Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition %s -> %s", e.From, e.To)
}

// ValidationError reports a malformed field detected before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsClientError reports whether err was caused by caller input rather than
// by a collaborator.
func IsClientError(err error) bool {
	var (
		dateErr  *InvalidDateError
		validErr *ValidationError
	)
	return errors.As(err, &dateErr) || errors.As(err, &validErr)
}
