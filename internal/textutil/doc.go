// Package textutil provides text processing utilities shared by the slide
// extractor, narration synthesis, and storage key generation.
//
// The primary use cases are:
//   - Normalizing extracted slide text (NFC, collapsed whitespace)
//   - Counting words for narration duration estimates
//   - Sanitizing file names and path segments for safe storage keys
package textutil
