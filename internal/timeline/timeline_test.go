package timeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"slidecast/internal/ingest"
	"slidecast/internal/pptx"
	"slidecast/internal/services"
	"slidecast/internal/testsupport"
	"slidecast/internal/timeline"
)

func docWithDurations(durations ...float64) ingest.ProcessedDocument {
	doc := ingest.ProcessedDocument{FileName: "deck.pptx"}
	for i, d := range durations {
		doc.Slides = append(doc.Slides, pptx.Slide{
			Index:           i,
			Title:           fmt.Sprintf("Slide %d", i+1),
			DurationSeconds: d,
			Transition:      pptx.Transition{Type: ingest.TransitionAuto, DurationSeconds: 0.5},
		})
		doc.TotalDurationSeconds += d
	}
	return doc
}

func TestSynthesizeThreeSlideScenario(t *testing.T) {
	opts := ingest.DefaultOptions()
	opts.DefaultDurationSeconds = 7
	opts.Thumbnails = false
	doc, _, err := ingest.NewProcessor(nil, nil).Process(context.Background(), "three.pptx", testsupport.SimpleDeck(t, "A", "B", "C"), opts, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	tl := timeline.Synthesize(doc, timeline.DefaultSettings())
	if len(tl.Scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(tl.Scenes))
	}
	for i, scene := range tl.Scenes {
		if scene.Duration != 7 {
			t.Fatalf("scene %d duration = %v", i, scene.Duration)
		}
		if scene.ID != fmt.Sprintf("scene-%d", i) || scene.SourceSlideIndex != i {
			t.Fatalf("scene %d identity = %+v", i, scene)
		}
	}
	if tl.TotalDuration != 21 {
		t.Fatalf("total = %v", tl.TotalDuration)
	}
	if tl.Scenes[0].TransitionIn != "fade" || tl.Scenes[2].TransitionOut != "fade" {
		t.Fatalf("edge transitions = %q / %q", tl.Scenes[0].TransitionIn, tl.Scenes[2].TransitionOut)
	}
	if tl.Scenes[1].TransitionIn != "slide" || tl.Scenes[0].TransitionOut != "slide" {
		t.Fatalf("interior transitions = %+v", tl.Scenes)
	}
	if err := timeline.Validate(tl); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestIngestTransitionOptionReachesEveryBoundary(t *testing.T) {
	opts := ingest.DefaultOptions()
	opts.Thumbnails = false
	opts.Transition.Type = "wipe"
	doc, _, err := ingest.NewProcessor(nil, nil).Process(context.Background(), "three.pptx", testsupport.SimpleDeck(t, "A", "B", "C"), opts, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	tl := timeline.Synthesize(doc, timeline.DefaultSettings())
	var got []string
	for _, scene := range tl.Scenes {
		got = append(got, scene.TransitionIn+"/"+scene.TransitionOut)
	}
	want := []string{"wipe/wipe", "wipe/wipe", "wipe/wipe"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
}

func TestSynthesizeConservesDurationWithoutGaps(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 50 {
		durations := make([]float64, 1+rng.IntN(40))
		for i := range durations {
			durations[i] = 0.1 + rng.Float64()*30
		}
		doc := docWithDurations(durations...)
		tl := timeline.SynthesizeWithID("tl", doc, timeline.DefaultSettings())

		sum := 0.0
		for _, scene := range tl.Scenes {
			sum += scene.Duration
		}
		if sum != doc.TotalDurationSeconds || tl.TotalDuration != doc.TotalDurationSeconds {
			t.Fatalf("round %d: scenes %v, timeline %v, document %v", round, sum, tl.TotalDuration, doc.TotalDurationSeconds)
		}
		for i := 0; i+1 < len(tl.Scenes); i++ {
			if tl.Scenes[i].StartTime+tl.Scenes[i].Duration != tl.Scenes[i+1].StartTime {
				t.Fatalf("round %d: gap between scene %d and %d", round, i, i+1)
			}
		}
		if tl.Scenes[0].StartTime != 0 {
			t.Fatalf("round %d: first scene starts at %v", round, tl.Scenes[0].StartTime)
		}
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	data := testsupport.BuildDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{
		{Title: "Intro", Body: []string{"Welcome", "everyone"}},
		{Title: "Divider"},
		{},
	}})
	opts := ingest.DefaultOptions()
	opts.Thumbnails = false
	run := func() timeline.Timeline {
		doc, _, err := ingest.NewProcessor(nil, nil).Process(context.Background(), "d.pptx", data, opts, nil)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		return timeline.SynthesizeWithID("fixed", doc, timeline.DefaultSettings())
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Fatalf("timelines differ:\n%+v\n%+v", a, b)
	}
}

func TestNarrationFallbacks(t *testing.T) {
	cases := []struct {
		name  string
		slide pptx.Slide
		want  string
	}{
		{name: "body", slide: pptx.Slide{Title: "T", TextBlocks: []string{"one", " ", "two"}}, want: "one two"},
		{name: "title", slide: pptx.Slide{Title: "  Only title "}, want: "Only title"},
		{name: "silent", slide: pptx.Slide{}, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := timeline.Narration(tc.slide); got != tc.want {
				t.Fatalf("Narration = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeckTransitionHintWins(t *testing.T) {
	doc := docWithDurations(3, 3, 3)
	doc.Slides[0].Animations = []pptx.AnimationHint{{Kind: pptx.AnimationTransition, Effect: "wipe", DurationSeconds: 1}}
	doc.Slides[1].Animations = []pptx.AnimationHint{{Kind: pptx.AnimationTransition, Effect: "push"}}
	doc.Slides[2].Animations = []pptx.AnimationHint{{Kind: pptx.AnimationEntrance, Effect: "fade"}}

	tl := timeline.SynthesizeWithID("tl", doc, timeline.DefaultSettings())
	got := []string{tl.Scenes[0].TransitionIn, tl.Scenes[1].TransitionIn, tl.Scenes[2].TransitionIn, tl.Scenes[2].TransitionOut}
	want := []string{"wipe", "push", "slide", "fade"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if tl.Scenes[0].TransitionOut != "push" {
		t.Fatalf("scene 0 out should match scene 1 in, got %q", tl.Scenes[0].TransitionOut)
	}
	if tl.Scenes[0].TransitionSeconds != 1 || tl.Scenes[1].TransitionSeconds != 0.5 {
		t.Fatalf("transition seconds = %v, %v", tl.Scenes[0].TransitionSeconds, tl.Scenes[1].TransitionSeconds)
	}
}

func TestExplicitTransitionOverridesPositionsAndHints(t *testing.T) {
	doc := docWithDurations(3, 3, 3)
	for i := range doc.Slides {
		doc.Slides[i].Transition = pptx.Transition{Type: "Wipe", DurationSeconds: 0.75}
	}
	doc.Slides[1].Animations = []pptx.AnimationHint{{Kind: pptx.AnimationTransition, Effect: "push", DurationSeconds: 2}}

	tl := timeline.SynthesizeWithID("tl", doc, timeline.DefaultSettings())
	for i, scene := range tl.Scenes {
		if scene.TransitionIn != "wipe" || scene.TransitionOut != "wipe" {
			t.Fatalf("scene %d transitions = %q / %q, want wipe everywhere", i, scene.TransitionIn, scene.TransitionOut)
		}
		if scene.TransitionSeconds != 0.75 {
			t.Fatalf("scene %d transition seconds = %v", i, scene.TransitionSeconds)
		}
	}
	if err := timeline.Validate(tl); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBrokenTimelines(t *testing.T) {
	good := timeline.SynthesizeWithID("tl", docWithDurations(2, 3), timeline.DefaultSettings())

	cases := []struct {
		name   string
		mutate func(*timeline.Timeline)
		want   string
	}{
		{name: "empty", mutate: func(tl *timeline.Timeline) { tl.Scenes = nil }, want: "no scenes"},
		{name: "gap", mutate: func(tl *timeline.Timeline) { tl.Scenes[1].StartTime = 2.5 }, want: "scene 1 starts"},
		{name: "zero duration", mutate: func(tl *timeline.Timeline) { tl.Scenes[0].Duration = 0 }, want: "scene 0 duration"},
		{name: "nan duration", mutate: func(tl *timeline.Timeline) { tl.Scenes[0].Duration = math.NaN() }, want: "scene 0 duration"},
		{name: "infinite duration", mutate: func(tl *timeline.Timeline) { tl.Scenes[1].Duration = math.Inf(1) }, want: "scene 1 duration"},
		{name: "nan start", mutate: func(tl *timeline.Timeline) { tl.Scenes[0].StartTime = math.NaN() }, want: "scene 0 starts"},
		{name: "nan total", mutate: func(tl *timeline.Timeline) { tl.TotalDuration = math.NaN() }, want: "total duration"},
		{name: "nan transition", mutate: func(tl *timeline.Timeline) { tl.Scenes[1].TransitionSeconds = math.NaN() }, want: "scene 1 transition seconds"},
		{name: "total", mutate: func(tl *timeline.Timeline) { tl.TotalDuration = 9 }, want: "total duration"},
		{name: "resolution", mutate: func(tl *timeline.Timeline) { tl.Settings.Resolution = "big" }, want: "resolution"},
		{name: "id", mutate: func(tl *timeline.Timeline) { tl.ID = "" }, want: "missing id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tl := good
			tl.Scenes = append([]timeline.Scene(nil), good.Scenes...)
			tc.mutate(&tl)
			err := timeline.Validate(tl)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
			if !errors.Is(err, timeline.ErrInvalid) || !errors.Is(err, services.ErrFatal) {
				t.Fatalf("expected fatal invalid-timeline error, got %v", err)
			}
			if services.IsRetryable(err) {
				t.Fatal("invalid timelines must not retry")
			}
		})
	}
}

func TestExportRoundTrips(t *testing.T) {
	tl := timeline.SynthesizeWithID("tl-1", docWithDurations(1.5, 2), timeline.DefaultSettings())

	var y bytes.Buffer
	if err := timeline.EncodeYAML(&y, tl); err != nil {
		t.Fatalf("EncodeYAML: %v", err)
	}
	if !strings.Contains(y.String(), "transition_in: fade") || !strings.Contains(y.String(), "frame_rate: 30") {
		t.Fatalf("unexpected yaml:\n%s", y.String())
	}
	fromYAML, err := timeline.DecodeYAML(&y)
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}
	if !reflect.DeepEqual(fromYAML, tl) {
		t.Fatalf("yaml round trip mismatch:\n%+v\n%+v", fromYAML, tl)
	}

	data, err := timeline.Marshal(tl)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	fromJSON, err := timeline.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(fromJSON, tl) {
		t.Fatal("json round trip mismatch")
	}
}

func TestSettingsDimensions(t *testing.T) {
	w, h, err := timeline.DefaultSettings().Dimensions()
	if err != nil || w != 1920 || h != 1080 {
		t.Fatalf("Dimensions = %d, %d, %v", w, h, err)
	}
	if _, _, err := (timeline.Settings{Resolution: "0x10"}).Dimensions(); err == nil {
		t.Fatal("expected error for zero width")
	}
}
