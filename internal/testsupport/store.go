package testsupport

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"slidecast/internal/config"
	"slidecast/internal/jobs"
	"slidecast/internal/timeline"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Timeline builds a valid timeline with one scene per duration.
func Timeline(durations ...float64) timeline.Timeline {
	tl := timeline.Timeline{ID: uuid.NewString(), Title: "Test deck", Settings: timeline.DefaultSettings()}
	start := 0.0
	for i, d := range durations {
		tl.Scenes = append(tl.Scenes, timeline.Scene{
			ID:               fmt.Sprintf("scene-%d", i),
			SourceSlideIndex: i,
			StartTime:        start,
			Duration:         d,
			TransitionIn:     timeline.TransitionSlide,
			TransitionOut:    timeline.TransitionSlide,
			NarrationText:    fmt.Sprintf("Narration for scene %d", i),
		})
		start += d
	}
	if n := len(tl.Scenes); n > 0 {
		tl.Scenes[0].TransitionIn = timeline.TransitionFade
		tl.Scenes[n-1].TransitionOut = timeline.TransitionFade
	}
	tl.TotalDuration = start
	return tl
}

// SaveTimeline stores a two-scene timeline owned by owner.
func SaveTimeline(t testing.TB, store *jobs.Store, owner string) *jobs.TimelineRecord {
	t.Helper()

	record, err := store.SaveTimeline(context.Background(), owner, "", Timeline(2, 3))
	if err != nil {
		t.Fatalf("store.SaveTimeline: %v", err)
	}
	return record
}

// NewJob stores a timeline and a queued job referencing it.
func NewJob(t testing.TB, store *jobs.Store, owner string) *jobs.Job {
	t.Helper()

	record := SaveTimeline(t, store, owner)
	job, err := store.Create(context.Background(), jobs.NewJob{
		OwnerID:       owner,
		TimelineRef:   record.ID,
		OutputFormat:  "mp4",
		QualityPreset: "standard",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
