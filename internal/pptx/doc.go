// Package pptx reads OOXML presentation containers.
//
// The package is split along the ingestion path:
//   - Validate performs the cheap pre-parse checks on raw upload bytes.
//   - OpenContainer indexes the zip parts with size and path guards.
//   - SlideOrder and ExtractSlide turn slide parts into Slide values.
//   - Resolver maps slide image relationships to media parts on demand.
//
// Everything here is pure with respect to the byte buffer it is given; no
// network or disk access happens in this package.
package pptx
