package ingest

import (
	"errors"
	"fmt"

	"slidecast/internal/pptx"
)

// ErrAllSlidesHidden is returned when SkipHidden removes every slide.
var ErrAllSlidesHidden = errors.New("every slide is hidden")

// ProcessingError wraps the validation or parse failure that stopped a Process
// call, along with the stage it happened in.
type ProcessingError struct {
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed during %s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ValidationError returns the wrapped *pptx.ValidationError, if any.
func (e *ProcessingError) ValidationError() (*pptx.ValidationError, bool) {
	var target *pptx.ValidationError
	if errors.As(e.Err, &target) {
		return target, true
	}
	return nil, false
}

// ParseError returns the wrapped *pptx.ParseError, if any.
func (e *ProcessingError) ParseError() (*pptx.ParseError, bool) {
	var target *pptx.ParseError
	if errors.As(e.Err, &target) {
		return target, true
	}
	return nil, false
}
