package controller

import (
	"errors"
	"fmt"
	"strings"

	"slidecast/internal/services"
)

var (
	// ErrNotFound reports an unknown job or timeline.
	ErrNotFound = fmt.Errorf("controller: %w", services.ErrNotFound)
	// ErrConflict reports an operation on a job whose state forbids it.
	ErrConflict = errors.New("controller: job state conflict")
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed requests.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return services.ErrValidation }

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
