package pptx_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"slidecast/internal/pptx"
	"slidecast/internal/testsupport"
)

const fadeInTiming = `<p:timing><p:tnLst><p:par><p:cTn id="1" dur="indefinite" restart="never" nodeType="tmRoot"><p:childTnLst><p:seq concurrent="1" nextAc="seek"><p:cTn id="2" dur="indefinite" nodeType="mainSeq"><p:childTnLst><p:par><p:cTn id="3" fill="hold"><p:stCondLst><p:cond delay="indefinite"/></p:stCondLst><p:childTnLst><p:par><p:cTn id="5" presetID="10" presetClass="entr" presetSubtype="0" fill="hold" nodeType="clickEffect"><p:stCondLst><p:cond delay="250"/></p:stCondLst><p:childTnLst><p:set><p:cBhvr><p:cTn id="6" dur="1" fill="hold"><p:stCondLst><p:cond delay="0"/></p:stCondLst></p:cTn><p:tgtEl><p:spTgt spid="3"/></p:tgtEl><p:attrNameLst><p:attrName>style.visibility</p:attrName></p:attrNameLst></p:cBhvr><p:to><p:strVal val="visible"/></p:to></p:set><p:animEffect transition="in" filter="fade"><p:cBhvr><p:cTn id="7" dur="500"/><p:tgtEl><p:spTgt spid="3"/></p:tgtEl></p:cBhvr></p:animEffect></p:childTnLst></p:cTn></p:par></p:childTnLst></p:cTn></p:par></p:childTnLst></p:cTn></p:seq></p:childTnLst></p:cTn></p:par></p:tnLst></p:timing>`

func openDeck(t *testing.T, spec testsupport.DeckSpec) *pptx.Container {
	t.Helper()
	c, err := pptx.OpenContainer(testsupport.BuildDeck(t, spec), pptx.DefaultLimits())
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	return c
}

func TestExtractTitleBodyAndNotes(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{
		Title: "Quarterly   Review",
		Body:  []string{"Revenue grew", "  ", "Costs fell\tsharply"},
		Notes: "Speak slowly\nPause here",
	}}})

	slides, warnings, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if len(slides) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(slides))
	}
	s := slides[0]
	if s.Index != 0 || s.PartPath != "ppt/slides/slide1.xml" {
		t.Fatalf("unexpected slide identity: %d %s", s.Index, s.PartPath)
	}
	if s.Title != "Quarterly Review" {
		t.Fatalf("title = %q", s.Title)
	}
	if len(s.TextBlocks) != 2 || s.TextBlocks[0] != "Revenue grew" || s.TextBlocks[1] != "Costs fell sharply" {
		t.Fatalf("text blocks = %q", s.TextBlocks)
	}
	if s.Notes != "Speak slowly\nPause here" {
		t.Fatalf("notes = %q", s.Notes)
	}
	if len(s.Shapes) != 2 || !s.Shapes[0].HasText || s.Shapes[0].Name != "Title 1" {
		t.Fatalf("shapes = %+v", s.Shapes)
	}
}

func TestExtractFallsBackToFirstParagraphForTitle(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{
		Body: []string{"Agenda", "Item one"},
	}}})
	slides, _, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if slides[0].Title != "Agenda" {
		t.Fatalf("title = %q", slides[0].Title)
	}
	if len(slides[0].TextBlocks) != 1 || slides[0].TextBlocks[0] != "Item one" {
		t.Fatalf("text blocks = %q", slides[0].TextBlocks)
	}
}

func TestExtractBlankSlideIsValid(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{}}})
	slides, _, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	s := slides[0]
	if s.Title != "" || len(s.TextBlocks) != 0 || len(s.Images) != 0 {
		t.Fatalf("expected empty slide, got %+v", s)
	}
	if s.TextBlocks == nil || s.Images == nil || s.Shapes == nil || s.Animations == nil {
		t.Fatal("expected empty, non-nil collections")
	}
}

func TestExtractResolvesImages(t *testing.T) {
	img := testsupport.PNG(t, 8, 4)
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{Title: "Photo", Image: img}}})

	slides, warnings, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if len(slides[0].Images) != 1 {
		t.Fatalf("expected one image, got %+v", slides[0].Images)
	}
	ref := slides[0].Images[0]
	if ref.RelationshipID != "rId2" || ref.MediaPartPath != "ppt/media/image1.png" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if ref.Width != 200 || ref.Height != 100 {
		t.Fatalf("expected 200x100 px, got %dx%d", ref.Width, ref.Height)
	}
	if ref.Size != int64(len(img)) {
		t.Fatalf("size = %d, want %d", ref.Size, len(img))
	}

	resolver := pptx.NewResolver(c)
	data, err := resolver.Bytes(ref)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(data) != len(img) {
		t.Fatalf("resolved %d bytes, want %d", len(data), len(img))
	}
}

func TestExtractDropsUnresolvableImagesWithWarnings(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{
		{Title: "Missing", ImageMissing: true},
		{Title: "Linked", ImageExternal: true},
	}})
	slides, warnings, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected both slides, got %d", len(slides))
	}
	for _, s := range slides {
		if len(s.Images) != 0 {
			t.Fatalf("expected image dropped on %s", s.PartPath)
		}
	}
	codes := map[string]bool{}
	for _, w := range warnings {
		codes[w.Code] = true
	}
	if !codes[pptx.WarnMissingMedia] || !codes[pptx.WarnExternalTarget] {
		t.Fatalf("expected missing and external warnings, got %+v", warnings)
	}
}

func TestExtractTransitionAndTiming(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{
		Title:           "Animated",
		Body:            []string{"Appears"},
		Transition:      "push",
		TransitionDurMs: 700,
		AdvanceMs:       3000,
		Timing:          fadeInTiming,
	}}})
	slides, warnings, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	s := slides[0]
	hint, ok := s.TransitionHint()
	if !ok || hint.Effect != "push" || hint.DurationSeconds != 0.7 {
		t.Fatalf("transition hint = %+v ok=%v", hint, ok)
	}
	if s.AdvanceAfterSeconds != 3 {
		t.Fatalf("advance after = %v", s.AdvanceAfterSeconds)
	}
	if len(s.Animations) != 2 {
		t.Fatalf("expected transition + entrance, got %+v", s.Animations)
	}
	build := s.Animations[1]
	if build.Kind != pptx.AnimationEntrance || build.Effect != "fade" {
		t.Fatalf("unexpected build: %+v", build)
	}
	if build.DurationSeconds != 0.5 || build.DelaySeconds != 0.25 || build.TargetShapeID != "3" {
		t.Fatalf("unexpected build timing: %+v", build)
	}
}

func TestExtractMalformedTimingIsWarning(t *testing.T) {
	timing := `<p:timing><p:tnLst><p:par><p:cTn id="1" presetClass="exit" presetID="1" dur="soon"/></p:par></p:tnLst></p:timing>`
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{Title: "Odd", Timing: timing}}})
	slides, warnings, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Code != pptx.WarnMalformedTiming {
		t.Fatalf("expected one timing warning, got %+v", warnings)
	}
	if len(slides[0].Animations) != 1 || slides[0].Animations[0].Effect != "disappear" {
		t.Fatalf("unexpected animations: %+v", slides[0].Animations)
	}
}

func TestExtractMalformedSlideIsParseError(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{
		{Title: "Fine"},
		{RawXML: `<p:sld xmlns:p="urn:p"><p:cSld><p:spTree></p:cSld>`},
	}})
	slides, warnings, err := pptx.Extract(c)
	var perr *pptx.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Part != "ppt/slides/slide2.xml" {
		t.Fatalf("expected offending part, got %q", perr.Part)
	}
	if slides != nil || warnings != nil {
		t.Fatal("expected no partial results alongside an error")
	}
}

func TestSlideOrderFollowsPresentationList(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{
		Slides: []testsupport.SlideSpec{{Title: "A"}, {Title: "B"}, {Title: "C"}},
		Order:  []int{2, 0, 1},
	})
	slides, _, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var titles []string
	for i, s := range slides {
		if s.Index != i {
			t.Fatalf("slide %d has index %d", i, s.Index)
		}
		titles = append(titles, s.Title)
	}
	if strings.Join(titles, ",") != "C,A,B" {
		t.Fatalf("order = %v", titles)
	}
}

func TestSlideOrderSkipsUnlistedParts(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{
		Slides: []testsupport.SlideSpec{{Title: "A"}, {Title: "B"}},
		Order:  []int{1},
	})
	order, warnings, err := pptx.SlideOrder(c)
	if err != nil {
		t.Fatalf("SlideOrder: %v", err)
	}
	if len(order) != 1 || order[0] != "ppt/slides/slide2.xml" {
		t.Fatalf("order = %v", order)
	}
	if len(warnings) != 1 || warnings[0].Code != pptx.WarnSlideOrder {
		t.Fatalf("expected slide order warning, got %+v", warnings)
	}
}

func TestHiddenSlideFlagged(t *testing.T) {
	c := openDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{{Title: "Backup", Hidden: true}}})
	slides, _, err := pptx.Extract(c)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !slides[0].Hidden {
		t.Fatal("expected hidden flag")
	}
}

func TestReadProperties(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c := openDeck(t, testsupport.DeckSpec{
		Slides:  []testsupport.SlideSpec{{Title: "A"}},
		Title:   "Roadmap",
		Author:  "Dana Q",
		Created: created,
	})
	props, warnings := pptx.ReadProperties(c)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if props.Title != "Roadmap" || props.Author != "Dana Q" || !props.Created.Equal(created) {
		t.Fatalf("unexpected properties: %+v", props)
	}
}
