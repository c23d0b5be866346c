// Package timeline maps a processed deck onto an ordered sequence of timed
// scenes. Synthesis is a pure function of its inputs so re-processing the
// same deck with the same id yields an identical timeline.
package timeline
