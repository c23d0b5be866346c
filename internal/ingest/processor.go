package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/pptx"
	"slidecast/internal/services"
)

const (
	percentInitializing = 0
	percentParsing      = 5
	percentSlidesStart  = 10
	percentSlidesEnd    = 85
	percentFinalizing   = 90
)

// Processor orchestrates validation, extraction and enrichment of a deck.
// A Processor is safe for concurrent use.
type Processor struct {
	logger      *slog.Logger
	thumbnailer *Thumbnailer
	now         func() time.Time
}

// NewProcessor constructs a processor. A nil thumbnailer falls back to one
// that draws placeholders with the built-in bitmap font.
func NewProcessor(logger *slog.Logger, thumbnailer *Thumbnailer) *Processor {
	if thumbnailer == nil {
		thumbnailer = NewThumbnailer(nil)
	}
	return &Processor{
		logger:      logging.NewComponentLogger(logger, "ingest"),
		thumbnailer: thumbnailer,
		now:         time.Now,
	}
}

// NewProcessorFromConfig builds a processor whose placeholders use the
// configured TrueType font.
func NewProcessorFromConfig(cfg *config.Config, logger *slog.Logger) (*Processor, error) {
	if cfg == nil || cfg.Ingest.FontPath == "" {
		return NewProcessor(logger, nil), nil
	}
	f, err := LoadFont(cfg.Ingest.FontPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "load font", "ingest.font_path is unusable", err)
	}
	return NewProcessor(logger, NewThumbnailer(f)), nil
}

// Process validates and extracts data. On error the returned document has
// empty slide and thumbnail collections and err is a *ProcessingError.
func (p *Processor) Process(ctx context.Context, name string, data []byte, opts Options, progress ProgressFunc) (ProcessedDocument, Stats, error) {
	started := p.now()
	logger := logging.WithContext(ctx, p.logger).With(logging.String("file", name))
	emit := func(ev Progress) {
		if progress != nil {
			progress(ev)
		}
	}
	fail := func(stage Stage, err error) (ProcessedDocument, Stats, error) {
		logger.Info("deck rejected",
			logging.String(logging.FieldEventType, "ingest_failed"),
			logging.String(logging.FieldStage, string(stage)),
			logging.Error(err),
		)
		return emptyDocument(name), Stats{}, &ProcessingError{Stage: stage, Err: err}
	}

	emit(Progress{Stage: StageInitializing, Percent: percentInitializing})
	if err := opts.Validate(); err != nil {
		return fail(StageInitializing, err)
	}
	if err := pptx.Validate(data, opts.Limits); err != nil {
		return fail(StageInitializing, err)
	}

	emit(Progress{Stage: StageParsing, Percent: percentParsing})
	container, err := pptx.OpenContainer(data, opts.Limits)
	if err != nil {
		return fail(StageParsing, err)
	}
	order, warnings, err := pptx.SlideOrder(container)
	if err != nil {
		return fail(StageParsing, err)
	}
	props, propWarnings := pptx.ReadProperties(container)
	warnings = append(warnings, propWarnings...)

	slides := make([]pptx.Slide, 0, len(order))
	total := len(order)
	for start := 0; ; start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return fail(StageProcessingSlides, services.Wrap(services.ErrCancelled, "ingest", "process slides", "context done", err))
		}
		end := min(start+opts.BatchSize, total)
		for i := start; i < end; i++ {
			slide, slideWarnings, err := pptx.ExtractSlide(container, order[i], i)
			if err != nil {
				return fail(StageProcessingSlides, err)
			}
			warnings = append(warnings, slideWarnings...)
			slides = append(slides, slide)
		}
		emit(Progress{
			Stage:       StageProcessingSlides,
			Percent:     slidePercent(end, total),
			SlidesDone:  end,
			SlidesTotal: total,
		})
		if end >= total {
			break
		}
	}

	emit(Progress{Stage: StageFinalizing, Percent: percentFinalizing, SlidesDone: total, SlidesTotal: total})
	slides = applyOptions(slides, opts)
	if len(slides) == 0 {
		return fail(StageFinalizing, ErrAllSlidesHidden)
	}

	doc := ProcessedDocument{
		FileName:   name,
		Title:      props.Title,
		Author:     props.Author,
		CreatedAt:  props.Created,
		Slides:     slides,
		Thumbnails: []Thumbnail{},
		Warnings:   warnings,
	}
	if doc.Title == "" {
		doc.Title = slides[0].Title
	}
	for _, slide := range slides {
		doc.TotalDurationSeconds += slide.DurationSeconds
	}

	if opts.Thumbnails {
		thumbs, err := p.thumbnailer.Generate(ctx, pptx.NewResolver(container), slides, opts.ThumbnailWidth)
		if err != nil {
			return fail(StageFinalizing, services.Wrap(services.ErrCancelled, "ingest", "thumbnails", "context done", err))
		}
		doc.Thumbnails = thumbs
	}

	if len(warnings) > 0 {
		logging.WarnWithContext(logger, "deck processed with warnings", "ingest_warnings",
			logging.Int("warning_count", len(warnings)),
			logging.String("first_warning", fmt.Sprintf("%s: %s", warnings[0].Part, warnings[0].Message)),
			logging.String(logging.FieldErrorHint, "inspect the deck for broken links or timing"),
			logging.String(logging.FieldImpact, "affected images or timing hints were skipped"),
		)
	}

	stats := summarize(doc, p.now().Sub(started))
	logger.Info("deck processed",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.Int("slides", stats.SlideCount),
		logging.Int("images", stats.ImageCount),
		logging.Float64("duration_seconds", stats.EstimatedDurationSeconds),
		logging.Int64("processing_ms", stats.ProcessingTimeMs),
	)
	return doc, stats, nil
}

func slidePercent(done, total int) float64 {
	if total == 0 {
		return percentSlidesEnd
	}
	return percentSlidesStart + float64(done)/float64(total)*(percentSlidesEnd-percentSlidesStart)
}

// applyOptions stamps caller durations and transitions on extracted slides.
func applyOptions(slides []pptx.Slide, opts Options) []pptx.Slide {
	out := make([]pptx.Slide, 0, len(slides))
	for _, slide := range slides {
		if opts.SkipHidden && slide.Hidden {
			continue
		}
		slide.Index = len(out)
		slide.DurationSeconds = slideDuration(slide, opts)
		slide.Transition = opts.Transition
		if opts.IgnoreDeckTransitions {
			slide.Animations = withoutTransitions(slide.Animations)
		}
		out = append(out, slide)
	}
	return out
}

func slideDuration(slide pptx.Slide, opts Options) float64 {
	duration := opts.DefaultDurationSeconds
	if opts.UseNotesTiming && slide.AdvanceAfterSeconds > 0 {
		duration = slide.AdvanceAfterSeconds
	}
	if duration < opts.MinDurationSeconds {
		duration = opts.MinDurationSeconds
	}
	return duration
}

func withoutTransitions(hints []pptx.AnimationHint) []pptx.AnimationHint {
	out := make([]pptx.AnimationHint, 0, len(hints))
	for _, hint := range hints {
		if hint.Kind != pptx.AnimationTransition {
			out = append(out, hint)
		}
	}
	return out
}
