package pptx

import "bytes"

var zipLocalHeader = []byte("PK\x03\x04")

// Validate runs the pre-parse checks in order: empty, too large, bad
// signature. It never inspects anything beyond the first four bytes.
func Validate(data []byte, limits Limits) error {
	limits = limits.withDefaults()
	size := int64(len(data))
	if size == 0 {
		return &ValidationError{Code: CodeEmptyFile}
	}
	if size > limits.MaxBytes {
		return &ValidationError{Code: CodeTooLarge, Size: size, Limit: limits.MaxBytes}
	}
	if !bytes.HasPrefix(data, zipLocalHeader) {
		return &ValidationError{Code: CodeBadSignature, Size: size}
	}
	return nil
}
