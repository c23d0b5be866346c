package jobs

import (
	"errors"
	"fmt"

	"slidecast/internal/services"
)

var (
	// ErrNotFound is returned when a job or timeline id is unknown.
	ErrNotFound = fmt.Errorf("job store: %w", services.ErrNotFound)
	// ErrConflict is returned when a compare-and-swap lost to a concurrent
	// transition.
	ErrConflict = errors.New("job state changed concurrently")
	// ErrInvalidTransition is returned for any transition out of a terminal
	// state.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	JobID   string
	Current Status
	Target  Status
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s: %v", e.JobID, e.Current, e.Target, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
