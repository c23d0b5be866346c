// Package encoder drives the external media encoder that turns a timeline and
// its narration into a finished video. The core never renders pixels itself.
package encoder
