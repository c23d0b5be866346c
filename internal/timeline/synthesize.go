package timeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"slidecast/internal/ingest"
	"slidecast/internal/pptx"
)

// ErrInvalid marks timelines rejected by Validate.
var ErrInvalid = errors.New("invalid timeline")

// Synthesize maps doc to a timeline with a fresh id.
func Synthesize(doc ingest.ProcessedDocument, settings Settings) Timeline {
	return SynthesizeWithID(uuid.NewString(), doc, settings)
}

// SynthesizeWithID maps doc to a timeline. Scene i comes from slide i and
// starts at the running sum of earlier durations. A caller-chosen transition
// type applies to every boundary. Under ingest.TransitionAuto the first scene
// fades in, the last fades out, and interior boundaries slide unless the
// incoming slide carries an explicit transition from the deck.
func SynthesizeWithID(id string, doc ingest.ProcessedDocument, settings Settings) Timeline {
	tl := Timeline{
		ID:         id,
		Title:      doc.Title,
		SourceFile: doc.FileName,
		Scenes:     make([]Scene, len(doc.Slides)),
		Settings:   settings,
	}
	start := 0.0
	for i, slide := range doc.Slides {
		in, seconds := transitionIn(slide, i)
		tl.Scenes[i] = Scene{
			ID:                fmt.Sprintf("scene-%d", i),
			SourceSlideIndex:  slide.Index,
			Title:             slide.Title,
			StartTime:         start,
			Duration:          slide.DurationSeconds,
			TransitionIn:      in,
			TransitionSeconds: seconds,
			NarrationText:     Narration(slide),
		}
		start += slide.DurationSeconds
	}
	for i := range tl.Scenes {
		if i+1 < len(tl.Scenes) {
			tl.Scenes[i].TransitionOut = tl.Scenes[i+1].TransitionIn
		} else if chosen, ok := explicitTransition(doc.Slides[i]); ok {
			tl.Scenes[i].TransitionOut = chosen
		} else {
			tl.Scenes[i].TransitionOut = TransitionFade
		}
	}
	tl.TotalDuration = start
	return tl
}

func transitionIn(slide pptx.Slide, position int) (string, float64) {
	if chosen, ok := explicitTransition(slide); ok {
		return chosen, slide.Transition.DurationSeconds
	}
	if hint, ok := slide.TransitionHint(); ok && hint.Effect != "" {
		seconds := hint.DurationSeconds
		if seconds <= 0 {
			seconds = slide.Transition.DurationSeconds
		}
		return hint.Effect, seconds
	}
	if position == 0 {
		return TransitionFade, slide.Transition.DurationSeconds
	}
	return TransitionSlide, slide.Transition.DurationSeconds
}

// explicitTransition reports the type stamped by ingest options when it is
// anything other than auto.
func explicitTransition(slide pptx.Slide) (string, bool) {
	chosen := strings.ToLower(strings.TrimSpace(slide.Transition.Type))
	if chosen == "" || chosen == ingest.TransitionAuto {
		return "", false
	}
	return chosen, true
}

// Narration is the body text joined by single spaces, else the title, else
// the empty string.
func Narration(slide pptx.Slide) string {
	parts := make([]string, 0, len(slide.TextBlocks))
	for _, block := range slide.TextBlocks {
		if block = strings.TrimSpace(block); block != "" {
			parts = append(parts, block)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return strings.TrimSpace(slide.Title)
}
