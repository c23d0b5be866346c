package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/semaphore"

	"slidecast/internal/config"
	"slidecast/internal/ingest"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/metrics"
	"slidecast/internal/services"
	"slidecast/internal/services/storage"
	"slidecast/internal/timeline"
)

const pptxContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// IngestRequest carries one uploaded deck. A nil Options uses the configured
// defaults.
type IngestRequest struct {
	OwnerID  string
	FileName string
	Data     []byte
	Options  *ingest.Options
	Progress ingest.ProgressFunc
}

// IngestError is the structured failure returned to callers when a deck is
// rejected.
type IngestError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Part    string `json:"part,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of an ingestion. Rejected decks produce Success
// false with Error set; they are not returned as Go errors.
type Result struct {
	Success    bool                      `json:"success"`
	Document   *ingest.ProcessedDocument `json:"processedDocument,omitempty"`
	Error      *IngestError              `json:"error,omitempty"`
	Stats      ingest.Stats              `json:"stats"`
	TimelineID string                    `json:"timelineId,omitempty"`
	SourceURL  string                    `json:"sourceUrl,omitempty"`
}

// Ingestor turns uploads into stored timelines.
type Ingestor struct {
	processor *ingest.Processor
	store     *jobs.Store
	artifacts storage.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
	options   ingest.Options
	settings  timeline.Settings
	sem       *semaphore.Weighted
}

// NewIngestor wires the ingestion boundary. Concurrent ingestions are capped
// at cfg.Ingest.Workers, or the CPU count when unset.
func NewIngestor(cfg *config.Config, processor *ingest.Processor, store *jobs.Store, artifacts storage.Store, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	if processor == nil {
		processor = ingest.NewProcessor(logger, nil)
	}
	workers := runtime.NumCPU()
	if cfg != nil && cfg.Ingest.Workers > 0 {
		workers = cfg.Ingest.Workers
	}
	return &Ingestor{
		processor: processor,
		store:     store,
		artifacts: artifacts,
		metrics:   m,
		logger:    logging.NewComponentLogger(logger, "ingestor"),
		options:   ingest.OptionsFromConfig(cfg),
		settings:  timeline.SettingsFromConfig(cfg),
		sem:       semaphore.NewWeighted(int64(workers)),
	}
}

// Options returns the configured processing defaults.
func (i *Ingestor) Options() ingest.Options {
	return i.options
}

// Ingest processes req, stores the upload and its thumbnails, then
// synthesizes and saves the timeline. The returned error is reserved for
// infrastructure failures and cancellation.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (Result, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return Result{}, invalidField("owner", "is required")
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = "deck.pptx"
	}
	if err := i.sem.Acquire(ctx, 1); err != nil {
		return Result{}, services.Wrap(services.ErrCancelled, "ingest", "acquire slot", "context done", err)
	}
	defer i.sem.Release(1)

	opts := i.options
	if req.Options != nil {
		opts = *req.Options
	}
	doc, stats, err := i.processor.Process(ctx, name, req.Data, opts, req.Progress)
	if err != nil {
		if rejected, ok := rejection(err); ok {
			i.metrics.Ingested(false, 0)
			return Result{Success: false, Error: rejected, Stats: stats}, nil
		}
		return Result{}, err
	}

	tl := timeline.Synthesize(doc, i.settings)
	logger := logging.WithContext(ctx, i.logger).With(
		logging.String(logging.FieldTimelineID, tl.ID),
		logging.String("owner_id", owner),
	)

	sourceURL := ""
	if i.artifacts != nil {
		sourceURL, err = i.artifacts.Put(ctx, req.Data, storage.UploadKey(tl.ID, name), pptxContentType)
		if err != nil {
			return Result{}, fmt.Errorf("store upload: %w", err)
		}
		i.storeThumbnails(ctx, logger, tl.ID, doc.Thumbnails)
	}

	if _, err := i.store.SaveTimeline(ctx, owner, sourceURL, tl); err != nil {
		return Result{}, fmt.Errorf("save timeline: %w", err)
	}
	i.metrics.Ingested(true, stats.SlideCount)
	logger.Info("deck ingested",
		logging.String(logging.FieldEventType, "deck_ingested"),
		logging.Int("slides", stats.SlideCount),
		logging.Float64("total_duration_seconds", tl.TotalDuration),
		logging.String("source_url", sourceURL),
	)
	return Result{
		Success:    true,
		Document:   &doc,
		Stats:      stats,
		TimelineID: tl.ID,
		SourceURL:  sourceURL,
	}, nil
}

func (i *Ingestor) storeThumbnails(ctx context.Context, logger *slog.Logger, timelineID string, thumbs []ingest.Thumbnail) {
	for idx := range thumbs {
		thumb := &thumbs[idx]
		if len(thumb.Data) == 0 {
			continue
		}
		url, err := i.artifacts.Put(ctx, thumb.Data, storage.ThumbnailKey(timelineID, thumb.SlideIndex), "image/png")
		if err != nil {
			logging.WarnWithContext(logger, "store thumbnail failed", "thumbnail_store_failed",
				logging.Int("slide_index", thumb.SlideIndex),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage configuration; thumbnails are optional"),
			)
			continue
		}
		thumb.URL = url
	}
}

func rejection(err error) (*IngestError, bool) {
	var perr *ingest.ProcessingError
	if !errors.As(err, &perr) {
		return nil, false
	}
	out := &IngestError{Stage: string(perr.Stage), Message: perr.Err.Error()}
	if verr, ok := perr.ValidationError(); ok {
		out.Kind = "validation"
		out.Code = string(verr.Code)
		return out, true
	}
	if parseErr, ok := perr.ParseError(); ok {
		out.Kind = "parse"
		out.Part = parseErr.Part
		return out, true
	}
	switch {
	case errors.Is(perr.Err, ingest.ErrAllSlidesHidden), errors.Is(perr.Err, services.ErrValidation):
		out.Kind = "validation"
		return out, true
	case errors.Is(perr.Err, services.ErrParse):
		out.Kind = "parse"
		return out, true
	}
	return nil, false
}
