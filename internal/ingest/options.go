package ingest

import (
	"math"
	"strings"

	"slidecast/internal/config"
	"slidecast/internal/pptx"
	"slidecast/internal/services"
)

// TransitionAuto leaves transitions to the timeline: fade at both ends,
// slide between scenes, and deck transition hints where present.
const TransitionAuto = "auto"

const (
	DefaultDurationSeconds   = 5.0
	DefaultTransitionType    = TransitionAuto
	DefaultTransitionSeconds = 0.5
	DefaultBatchSize         = 10
	DefaultThumbnailWidth    = 320
)

// Options controls how a deck is processed. Every field is explicit; the zero
// value is not usable, start from DefaultOptions.
//
// Caller options always outrank hints read from the deck. The only deck
// timing honoured is the automatic advance time, and only when
// UseNotesTiming is set.
type Options struct {
	// DefaultDurationSeconds is applied to every slide. Default 5.
	DefaultDurationSeconds float64
	// MinDurationSeconds floors every slide duration. Default 0 (no floor).
	MinDurationSeconds float64
	// Transition is stamped on every slide. Type "auto" (the default) keeps
	// the positional pattern and deck hints; any other type is applied to
	// every scene boundary, deck hints included. Default auto, 0.5s.
	Transition pptx.Transition
	// UseNotesTiming replaces the default duration with the deck's automatic
	// advance time when the slide has one. Default false.
	UseNotesTiming bool
	// IgnoreDeckTransitions drops transition hints read from the deck so
	// timelines fall back to their positional defaults. Default false.
	IgnoreDeckTransitions bool
	// SkipHidden drops slides marked hidden and renumbers the rest.
	// Default false.
	SkipHidden bool
	// Thumbnails enables per-slide PNG thumbnails. Default true.
	Thumbnails bool
	// ThumbnailWidth is the thumbnail width in pixels. Default 320.
	ThumbnailWidth int
	// BatchSize is the number of slides per processing-slides progress
	// event. Default 10.
	BatchSize int
	// Limits bounds upload and container sizes. Default pptx.DefaultLimits.
	Limits pptx.Limits
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		DefaultDurationSeconds: DefaultDurationSeconds,
		Transition: pptx.Transition{
			Type:            DefaultTransitionType,
			DurationSeconds: DefaultTransitionSeconds,
		},
		Thumbnails:     true,
		ThumbnailWidth: DefaultThumbnailWidth,
		BatchSize:      DefaultBatchSize,
		Limits:         pptx.DefaultLimits(),
	}
}

// OptionsFromConfig maps the ingest section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	in := cfg.Ingest
	opts.DefaultDurationSeconds = in.DefaultDurationSeconds
	opts.MinDurationSeconds = in.MinDurationSeconds
	opts.Transition = pptx.Transition{Type: in.TransitionType, DurationSeconds: in.TransitionDurationSeconds}
	opts.UseNotesTiming = in.UseNotesTiming
	opts.Thumbnails = in.Thumbnails
	opts.ThumbnailWidth = in.ThumbnailWidth
	opts.BatchSize = in.BatchSize
	opts.Limits = pptx.Limits{
		MaxBytes:      int64(in.MaxUploadMiB) << 20,
		MaxPartBytes:  int64(in.MaxPartMiB) << 20,
		MaxTotalBytes: int64(in.MaxTotalMiB) << 20,
		MaxParts:      in.MaxParts,
	}
	return opts
}

// Validate reports option values that cannot produce a valid document.
func (o Options) Validate() error {
	var problems []string
	if !positive(o.DefaultDurationSeconds) {
		problems = append(problems, "default duration must be a positive finite number")
	}
	if !nonNegative(o.MinDurationSeconds) {
		problems = append(problems, "minimum duration must be a non-negative finite number")
	}
	if strings.TrimSpace(o.Transition.Type) == "" {
		problems = append(problems, "transition type is required")
	}
	if !nonNegative(o.Transition.DurationSeconds) {
		problems = append(problems, "transition duration must be a non-negative finite number")
	}
	if o.BatchSize <= 0 {
		problems = append(problems, "batch size must be positive")
	}
	if o.Thumbnails && o.ThumbnailWidth <= 0 {
		problems = append(problems, "thumbnail width must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "ingest", "options", strings.Join(problems, "; "), nil)
}

// positive and nonNegative also reject NaN and infinities.
func positive(v float64) bool { return v > 0 && !math.IsInf(v, 1) }

func nonNegative(v float64) bool { return v >= 0 && !math.IsInf(v, 1) }
