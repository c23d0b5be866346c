package pptx

import (
	"errors"
	"fmt"

	"slidecast/internal/services"
)

// ValidationCode identifies which pre-parse check rejected an upload.
type ValidationCode string

const (
	CodeEmptyFile    ValidationCode = "EmptyFile"
	CodeTooLarge     ValidationCode = "TooLarge"
	CodeBadSignature ValidationCode = "BadSignature"
)

// ValidationError is returned by Validate. Errors compare equal under
// errors.Is when their codes match, so callers can test against the
// exported sentinels.
type ValidationError struct {
	Code  ValidationCode
	Size  int64
	Limit int64
}

var (
	ErrEmptyFile    = &ValidationError{Code: CodeEmptyFile}
	ErrTooLarge     = &ValidationError{Code: CodeTooLarge}
	ErrBadSignature = &ValidationError{Code: CodeBadSignature}
)

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeEmptyFile:
		return "empty file"
	case CodeTooLarge:
		if e.Limit > 0 {
			return fmt.Sprintf("file too large: %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
		}
		return "file too large"
	case CodeBadSignature:
		return "bad signature: not a zip container"
	default:
		return "invalid document: " + string(e.Code)
	}
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

func (e *ValidationError) Unwrap() error { return services.ErrValidation }

// ParseError reports a malformed container or part. Part is empty when the
// failure concerns the container as a whole.
type ParseError struct {
	Part string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("parse container: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Part, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{e.Err, services.ErrParse} }

var (
	ErrNoSlides          = errors.New("container has no slide parts")
	ErrTooManyParts      = errors.New("container part count exceeds limit")
	ErrPartTooLarge      = errors.New("part exceeds decompressed size limit")
	ErrContainerTooLarge = errors.New("container exceeds total decompressed size limit")
	ErrUnsafePath        = errors.New("part path escapes container root")
	ErrDuplicatePart     = errors.New("duplicate part path")
	ErrPartNotFound      = errors.New("part not found")
)

func parseErr(part string, err error) error {
	return &ParseError{Part: part, Err: err}
}

// Warning is a non-fatal extraction problem. Warnings never abort a document.
type Warning struct {
	Part    string `json:"part"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarnUnresolvedRelationship = "unresolved_relationship"
	WarnExternalTarget         = "external_target"
	WarnMissingMedia           = "missing_media"
	WarnMalformedTiming        = "malformed_timing"
	WarnMalformedNotes         = "malformed_notes"
	WarnMalformedProperties    = "malformed_properties"
	WarnSlideOrder             = "slide_order"
)
