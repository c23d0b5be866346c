package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/services"
)

const (
	TransitionFade  = "fade"
	TransitionSlide = "slide"
)

// Settings are the output parameters the encoder honours.
type Settings struct {
	Resolution  string `json:"resolution" yaml:"resolution"`
	FrameRate   int    `json:"frameRate" yaml:"frame_rate"`
	AspectRatio string `json:"aspectRatio" yaml:"aspect_ratio"`
}

// DefaultSettings returns 1080p at 30fps.
func DefaultSettings() Settings {
	return Settings{Resolution: "1920x1080", FrameRate: 30, AspectRatio: "16:9"}
}

// SettingsFromConfig reads the timeline section of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		return DefaultSettings()
	}
	return Settings{
		Resolution:  cfg.Timeline.Resolution,
		FrameRate:   cfg.Timeline.FrameRate,
		AspectRatio: cfg.Timeline.AspectRatio,
	}
}

// Dimensions parses Resolution as WIDTHxHEIGHT.
func (s Settings) Dimensions() (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s.Resolution), "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution %q: expected WIDTHxHEIGHT", s.Resolution)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("resolution %q: invalid width", s.Resolution)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("resolution %q: invalid height", s.Resolution)
	}
	return width, height, nil
}

// Scene is one timed segment derived from one slide.
type Scene struct {
	ID                string  `json:"id" yaml:"id"`
	SourceSlideIndex  int     `json:"sourceSlideIndex" yaml:"source_slide_index"`
	Title             string  `json:"title,omitempty" yaml:"title,omitempty"`
	StartTime         float64 `json:"startTime" yaml:"start_time"`
	Duration          float64 `json:"duration" yaml:"duration"`
	TransitionIn      string  `json:"transitionIn" yaml:"transition_in"`
	TransitionOut     string  `json:"transitionOut" yaml:"transition_out"`
	TransitionSeconds float64 `json:"transitionSeconds" yaml:"transition_seconds"`
	NarrationText     string  `json:"narrationText" yaml:"narration_text"`
}

// EndTime is StartTime + Duration.
func (s Scene) EndTime() float64 { return s.StartTime + s.Duration }

// Timeline is an ordered, gap-free sequence of scenes. It is immutable
// once synthesized.
type Timeline struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	SourceFile    string   `json:"sourceFile,omitempty" yaml:"source_file,omitempty"`
	Scenes        []Scene  `json:"scenes" yaml:"scenes"`
	TotalDuration float64  `json:"totalDuration" yaml:"total_duration"`
	Settings      Settings `json:"settings" yaml:"settings"`
}

// contiguityTolerance absorbs float noise from timelines decoded from
// storage.
const contiguityTolerance = 1e-6

// Validate reports timelines the encoder cannot render. Failures carry the
// services.ErrFatal marker so render workers skip retries.
func Validate(tl Timeline) error {
	var problems []string
	if strings.TrimSpace(tl.ID) == "" {
		problems = append(problems, "missing id")
	}
	if len(tl.Scenes) == 0 {
		problems = append(problems, "no scenes")
	}
	if _, _, err := tl.Settings.Dimensions(); err != nil {
		problems = append(problems, err.Error())
	}
	if tl.Settings.FrameRate <= 0 {
		problems = append(problems, "frame rate must be positive")
	}
	expected := 0.0
	for i, scene := range tl.Scenes {
		if !(scene.Duration > 0) || math.IsInf(scene.Duration, 0) {
			problems = append(problems, fmt.Sprintf("scene %d duration must be a positive finite number", i))
		}
		if !(scene.TransitionSeconds >= 0) || math.IsInf(scene.TransitionSeconds, 0) {
			problems = append(problems, fmt.Sprintf("scene %d transition seconds must be a finite number >= 0", i))
		}
		if !withinTolerance(scene.StartTime, expected) {
			problems = append(problems, fmt.Sprintf("scene %d starts at %.3f, expected %.3f", i, scene.StartTime, expected))
		}
		expected = scene.EndTime()
	}
	if len(tl.Scenes) > 0 && !withinTolerance(tl.TotalDuration, expected) {
		problems = append(problems, fmt.Sprintf("total duration %.3f does not match scenes %.3f", tl.TotalDuration, expected))
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrFatal, "timeline", "validate", strings.Join(problems, "; "), ErrInvalid)
}

// withinTolerance is false for NaN and infinite inputs.
func withinTolerance(got, want float64) bool {
	return math.Abs(got-want) <= contiguityTolerance
}
