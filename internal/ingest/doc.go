// Package ingest turns uploaded PPTX bytes into a ProcessedDocument.
//
// Processor runs validation, container parsing, slide extraction and
// asset resolution in order, applies caller duration and transition
// defaults, renders best-effort thumbnails, and reports progress through a
// strictly ordered sequence of stages: initializing, parsing,
// processing-slides (once per batch) and finalizing. On failure the
// returned document is always empty.
package ingest
