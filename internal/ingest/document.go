package ingest

import (
	"time"

	"slidecast/internal/pptx"
)

// Stage names a progress phase. Stages are always reported in declaration
// order.
type Stage string

const (
	StageInitializing     Stage = "initializing"
	StageParsing          Stage = "parsing"
	StageProcessingSlides Stage = "processing-slides"
	StageFinalizing       Stage = "finalizing"
)

// Progress is one progress event.
type Progress struct {
	Stage       Stage   `json:"stage"`
	Percent     float64 `json:"percent"`
	SlidesDone  int     `json:"slidesDone"`
	SlidesTotal int     `json:"slidesTotal"`
}

// ProgressFunc receives progress events synchronously on the processing
// goroutine. A nil ProgressFunc is allowed.
type ProgressFunc func(Progress)

// Thumbnail is a per-slide preview. Data is nil and URL carries a
// placeholder:// reference when no image could be rendered at all.
type Thumbnail struct {
	SlideIndex  int    `json:"slideIndex"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Data        []byte `json:"-"`
	Placeholder bool   `json:"placeholder"`
	URL         string `json:"url,omitempty"`
}

// ProcessedDocument is the result of a successful Process call. Slides is
// non-empty and TotalDurationSeconds equals the sum of slide durations.
type ProcessedDocument struct {
	FileName             string         `json:"fileName"`
	Title                string         `json:"title,omitempty"`
	Author               string         `json:"author,omitempty"`
	CreatedAt            time.Time      `json:"createdAt,omitzero"`
	Slides               []pptx.Slide   `json:"slides"`
	Thumbnails           []Thumbnail    `json:"thumbnails"`
	Warnings             []pptx.Warning `json:"warnings,omitempty"`
	TotalDurationSeconds float64        `json:"totalDurationSeconds"`
}

// Stats summarizes a processing run for the ingestion boundary.
type Stats struct {
	SlideCount               int     `json:"slideCount"`
	ImageCount               int     `json:"imageCount"`
	TextBlockCount           int     `json:"textBlockCount"`
	EstimatedDurationSeconds float64 `json:"estimatedDurationSeconds"`
	ProcessingTimeMs         int64   `json:"processingTimeMs"`
}

func emptyDocument(name string) ProcessedDocument {
	return ProcessedDocument{
		FileName:   name,
		Slides:     []pptx.Slide{},
		Thumbnails: []Thumbnail{},
	}
}

func summarize(doc ProcessedDocument, elapsed time.Duration) Stats {
	stats := Stats{
		SlideCount:               len(doc.Slides),
		EstimatedDurationSeconds: doc.TotalDurationSeconds,
		ProcessingTimeMs:         elapsed.Milliseconds(),
	}
	for _, slide := range doc.Slides {
		stats.ImageCount += len(slide.Images)
		stats.TextBlockCount += len(slide.TextBlocks)
	}
	return stats
}
