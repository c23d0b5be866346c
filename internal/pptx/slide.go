package pptx

// emuPerPixel converts EMU (English Metric Units) to pixels at 96 dpi.
const emuPerPixel = 9525

// Transition describes how a slide enters. Extract fills it only from an
// explicit p:transition element; the ingest processor applies caller
// defaults on top.
type Transition struct {
	Type            string  `json:"type"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// ImageRef is a weak reference to a media part. Bytes are read through
// Resolver, never copied into the slide.
type ImageRef struct {
	RelationshipID string `json:"relationshipId"`
	MediaPartPath  string `json:"mediaPartPath"`
	// Width and Height are pixels at 96 dpi from the picture frame; zero
	// when the frame carries no extent.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Size is the decompressed media size in bytes.
	Size int64 `json:"size"`
}

type ShapeKind string

const (
	ShapeKindShape        ShapeKind = "shape"
	ShapeKindPicture      ShapeKind = "picture"
	ShapeKindGroup        ShapeKind = "group"
	ShapeKindGraphicFrame ShapeKind = "graphicFrame"
	ShapeKindConnector    ShapeKind = "connector"
)

// ShapeRef summarizes one drawing element on the slide.
type ShapeRef struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Kind    ShapeKind `json:"kind"`
	HasText bool      `json:"hasText"`
}

type AnimationKind string

const (
	AnimationTransition AnimationKind = "transition"
	AnimationEntrance   AnimationKind = "entrance"
	AnimationEmphasis   AnimationKind = "emphasis"
	AnimationExit       AnimationKind = "exit"
	AnimationMotion     AnimationKind = "motion"
)

// AnimationHint is a best-effort reading of slide transition and build
// timing. Zero durations mean the deck did not say.
type AnimationHint struct {
	Kind            AnimationKind `json:"kind"`
	Effect          string        `json:"effect"`
	DurationSeconds float64       `json:"durationSeconds"`
	DelaySeconds    float64       `json:"delaySeconds"`
	TargetShapeID   string        `json:"targetShapeId,omitempty"`
}

// Slide is the structured content of one slide part.
//
// Defaulting rules:
//   - Title is "" when the slide has no title placeholder and no text.
//   - TextBlocks excludes the paragraph used as the title.
//   - Notes is "" when the slide has no notes part or the notes are blank.
//   - AdvanceAfterSeconds is 0 unless the deck sets an automatic advance.
//   - DurationSeconds and Transition are zero from ExtractSlide and are set
//     by the ingest processor; a processed slide always has DurationSeconds > 0.
type Slide struct {
	Index               int             `json:"index"`
	PartPath            string          `json:"partPath"`
	Title               string          `json:"title"`
	TextBlocks          []string        `json:"textBlocks"`
	Images              []ImageRef      `json:"images"`
	Shapes              []ShapeRef      `json:"shapes"`
	Animations          []AnimationHint `json:"animations"`
	Notes               string          `json:"notes,omitempty"`
	Hidden              bool            `json:"hidden,omitempty"`
	AdvanceAfterSeconds float64         `json:"advanceAfterSeconds,omitempty"`
	DurationSeconds     float64         `json:"durationSeconds"`
	Transition          Transition      `json:"transition"`
}

// TransitionHint returns the deck's explicit transition for this slide.
func (s Slide) TransitionHint() (AnimationHint, bool) {
	for _, hint := range s.Animations {
		if hint.Kind == AnimationTransition {
			return hint, true
		}
	}
	return AnimationHint{}, false
}

func emuToPixels(emu int64) int {
	if emu <= 0 {
		return 0
	}
	return int((emu + emuPerPixel/2) / emuPerPixel)
}
