// Package tts produces narration audio for timeline scenes. The silence
// synthesizer emits correctly sized WAV silence for local and test use; the
// HTTP synthesizer calls a configured speech endpoint.
package tts
