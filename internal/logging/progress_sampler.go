package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins high-frequency progress callbacks down to stage
// changes and bucket crossings. It is not safe for concurrent use.
type ProgressSampler struct {
	step  float64
	stage string
	next  float64
}

// NewProgressSampler returns a sampler with the given bucket width in percent
// (5 when step is not positive).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether an update is worth logging. A negative percent
// means unknown and only a stage change will emit. A nil sampler always emits.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	stage = strings.TrimSpace(stage)
	changed := stage != "" && stage != s.stage
	if changed {
		s.stage = stage
		s.next = 0
	}
	if percent < 0 {
		return changed
	}
	percent = math.Min(percent, 100)
	if percent < s.next {
		return changed
	}
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	return true
}
