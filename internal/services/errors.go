package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrParse            = errors.New("parse error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrEncoding         = errors.New("encoding error")
	ErrExternalTool     = errors.New("external tool error")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
	ErrFatal            = errors.New("fatal error")
	ErrCancelled        = errors.New("cancelled")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later retry classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a render failure should consume another attempt
// instead of failing the job outright. Validation, parse, configuration,
// not-found, fatal, and cancellation errors never retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrParse),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrFatal),
		errors.Is(err, ErrCancelled):
		return false
	default:
		return true
	}
}

// ErrorKind names the marker carried by err for logs and API payloads.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindParse         ErrorKind = "parse"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindQueue         ErrorKind = "queue"
	KindEncoding      ErrorKind = "encoding"
	KindExternalTool  ErrorKind = "external_tool"
	KindTimeout       ErrorKind = "timeout"
	KindFatal         ErrorKind = "fatal"
	KindCancelled     ErrorKind = "cancelled"
	KindTransient     ErrorKind = "transient"
)

// ErrorDetails is a flattened view of a wrapped error suitable for logging.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Cause   error
}

var kindOrder = []struct {
	marker error
	kind   ErrorKind
	hint   string
}{
	{ErrValidation, KindValidation, "fix the input and resubmit"},
	{ErrParse, KindParse, "the document is malformed; re-export it from the authoring tool"},
	{ErrConfiguration, KindConfiguration, "check slidecast configuration"},
	{ErrNotFound, KindNotFound, "verify the referenced record exists"},
	{ErrQueueUnavailable, KindQueue, "check queue broker connectivity"},
	{ErrEncoding, KindEncoding, "inspect encoder output in the job log"},
	{ErrExternalTool, KindExternalTool, "verify the external tool is installed and on PATH"},
	{ErrTimeout, KindTimeout, "increase the configured timeout or check service health"},
	{ErrFatal, KindFatal, "the job cannot be retried"},
	{ErrCancelled, KindCancelled, ""},
}

// Details classifies err against the known markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindTransient, Message: strings.TrimSpace(err.Error()), Cause: errors.Unwrap(err)}
	for _, entry := range kindOrder {
		if errors.Is(err, entry.marker) {
			details.Kind = entry.kind
			details.Hint = entry.hint
			break
		}
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
