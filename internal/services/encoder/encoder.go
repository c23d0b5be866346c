package encoder

import (
	"context"
	"fmt"

	"slidecast/internal/services"
	"slidecast/internal/timeline"
)

// Output container formats.
const (
	FormatMP4  = "mp4"
	FormatWebM = "webm"
	FormatMOV  = "mov"
)

// Quality presets.
const (
	QualityDraft    = "draft"
	QualityStandard = "standard"
	QualityHigh     = "high"
)

// SceneAudio is the narration track for one scene. Empty Data renders silence
// for the scene's duration.
type SceneAudio struct {
	SceneID         string
	Data            []byte
	Format          string
	DurationSeconds float64
}

// OutputSpec selects the rendered container and quality.
type OutputSpec struct {
	Format        string
	QualityPreset string
}

// Validate reports unsupported formats or presets.
func (s OutputSpec) Validate() error {
	if _, ok := contentTypes[s.Format]; !ok {
		return services.Wrap(services.ErrValidation, "encoder", "output spec", fmt.Sprintf("unsupported format %q", s.Format), nil)
	}
	if _, ok := qualityCRF[s.QualityPreset]; !ok {
		return services.Wrap(services.ErrValidation, "encoder", "output spec", fmt.Sprintf("unsupported quality preset %q", s.QualityPreset), nil)
	}
	return nil
}

// ProgressUpdate reports encoder position against the timeline length.
type ProgressUpdate struct {
	Percent        float64
	EncodedSeconds float64
	Speed          string
}

// Encoder composes a timeline and its narration into a video.
type Encoder interface {
	Encode(ctx context.Context, tl timeline.Timeline, audio []SceneAudio, spec OutputSpec, progress func(ProgressUpdate)) ([]byte, error)
}

var contentTypes = map[string]string{
	FormatMP4:  "video/mp4",
	FormatWebM: "video/webm",
	FormatMOV:  "video/quicktime",
}

// ContentType returns the MIME type for an output format.
func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SupportedFormats lists accepted output formats.
func SupportedFormats() []string {
	return []string{FormatMP4, FormatWebM, FormatMOV}
}

// SupportedQualityPresets lists accepted quality presets.
func SupportedQualityPresets() []string {
	return []string{QualityDraft, QualityStandard, QualityHigh}
}

// Error describes a failed encoder run.
type Error struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	tail := lastLine(e.Stderr)
	if tail == "" {
		return fmt.Sprintf("encoder exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("encoder exited with code %d: %s", e.ExitCode, tail)
}

func (e *Error) Unwrap() []error {
	return []error{services.ErrEncoding, e.Err}
}
