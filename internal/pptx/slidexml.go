package pptx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"slidecast/internal/textutil"
)

var shapeKinds = map[string]ShapeKind{
	"sp":           ShapeKindShape,
	"pic":          ShapeKindPicture,
	"grpSp":        ShapeKindGroup,
	"graphicFrame": ShapeKindGraphicFrame,
	"cxnSp":        ShapeKindConnector,
}

// Placeholder types whose text never reaches narration.
var chromePlaceholders = map[string]bool{
	"sldNum": true,
	"dt":     true,
	"ftr":    true,
	"hdr":    true,
	"sldImg": true,
}

type paragraph struct {
	text   string
	shape  int
	phType string
}

type imageHit struct {
	relID string
	cx    int64
	cy    int64
}

type shapeFrame struct {
	index  int
	phType string
	cx, cy int64
	images []int
}

// parsedSlide is the raw reading of a slide or notes part before
// relationships are resolved.
type parsedSlide struct {
	hidden       bool
	shapes       []ShapeRef
	paragraphs   []paragraph
	images       []imageHit
	transition   *AnimationHint
	advanceAfter float64
	builds       []AnimationHint
	issues       []string
}

func isTitlePlaceholder(phType string) bool {
	return phType == "title" || phType == "ctrTitle"
}

// parseSlideXML streams a PresentationML slide (or notes) part. It fails
// only when the XML itself is malformed; unexpected structure is ignored.
func parseSlideXML(data []byte) (*parsedSlide, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	out := &parsedSlide{}

	var (
		frames          []*shapeFrame
		inPara          bool
		inText          bool
		text            strings.Builder
		transitionDepth int
		transitionSeen  bool
		timing          *timingParser
	)
	top := func() *shapeFrame {
		if len(frames) == 0 {
			return nil
		}
		return frames[len(frames)-1]
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if timing != nil {
			if timing.handle(tok) {
				out.builds = timing.hints
				out.issues = append(out.issues, timing.issues...)
				timing = nil
			}
			continue
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if transitionDepth > 0 {
				transitionDepth++
				if out.transition.Effect == "" && !isSoundElement(t.Name.Local) {
					out.transition.Effect = t.Name.Local
				}
				continue
			}
			switch t.Name.Local {
			case "sld":
				if show := attrValue(t, "show"); show == "0" || show == "false" {
					out.hidden = true
				}
			case "sp", "pic", "grpSp", "graphicFrame", "cxnSp":
				out.shapes = append(out.shapes, ShapeRef{Kind: shapeKinds[t.Name.Local]})
				frames = append(frames, &shapeFrame{index: len(out.shapes) - 1})
			case "cNvPr":
				if f := top(); f != nil && out.shapes[f.index].ID == "" {
					out.shapes[f.index].ID = attrValue(t, "id")
					out.shapes[f.index].Name = attrValue(t, "name")
				}
			case "ph":
				if f := top(); f != nil {
					f.phType = attrValue(t, "type")
					if f.phType == "" {
						f.phType = "obj"
					}
				}
			case "ext":
				if f := top(); f != nil && f.cx == 0 && hasAttr(t, "cx") {
					f.cx, _ = strconv.ParseInt(attrValue(t, "cx"), 10, 64)
					f.cy, _ = strconv.ParseInt(attrValue(t, "cy"), 10, 64)
				}
			case "blip":
				relID := attrValue(t, "embed")
				if relID == "" {
					continue
				}
				out.images = append(out.images, imageHit{relID: relID})
				if f := top(); f != nil {
					f.images = append(f.images, len(out.images)-1)
				}
			case "p":
				if top() != nil {
					inPara = true
					text.Reset()
				}
			case "t":
				inText = inPara
			case "br":
				if inPara {
					text.WriteByte(' ')
				}
			case "transition":
				if transitionSeen {
					if err := dec.Skip(); err != nil {
						return nil, err
					}
					continue
				}
				transitionSeen = true
				transitionDepth = 1
				hint, advance, issues := transitionAttrs(t)
				out.transition = &hint
				out.advanceAfter = advance
				out.issues = append(out.issues, issues...)
			case "timing":
				timing = newTimingParser()
			}
		case xml.EndElement:
			if transitionDepth > 0 {
				transitionDepth--
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if !inPara {
					continue
				}
				inPara = false
				value := textutil.NormalizeText(text.String())
				f := top()
				if value == "" || f == nil {
					continue
				}
				out.paragraphs = append(out.paragraphs, paragraph{text: value, shape: f.index, phType: f.phType})
				out.shapes[f.index].HasText = true
			case "sp", "pic", "grpSp", "graphicFrame", "cxnSp":
				f := top()
				if f == nil {
					continue
				}
				for _, idx := range f.images {
					if out.images[idx].cx == 0 {
						out.images[idx].cx = f.cx
						out.images[idx].cy = f.cy
					}
				}
				frames = frames[:len(frames)-1]
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}

	if out.transition != nil && out.transition.Effect == "" {
		out.transition = nil
	}
	return out, nil
}

// titleAndBody splits paragraphs into a title and narration text blocks. The
// title comes from the first title placeholder, or failing that the first
// paragraph. Footer, date, and slide-number placeholders are dropped.
func (p *parsedSlide) titleAndBody() (string, []string) {
	titleShape := -1
	for _, para := range p.paragraphs {
		if isTitlePlaceholder(para.phType) {
			titleShape = para.shape
			break
		}
	}

	var (
		titleParts []string
		body       []string
	)
	usedFirst := false
	for _, para := range p.paragraphs {
		if chromePlaceholders[para.phType] {
			continue
		}
		switch {
		case titleShape >= 0 && para.shape == titleShape:
			titleParts = append(titleParts, para.text)
		case titleShape < 0 && !usedFirst:
			titleParts = append(titleParts, para.text)
			usedFirst = true
		default:
			body = append(body, para.text)
		}
	}
	return strings.Join(titleParts, " "), body
}

// notesText returns the speaker notes body. Notes pages carry the text in a
// body placeholder; when none is marked, every non-chrome paragraph is used.
func (p *parsedSlide) notesText() string {
	var body, loose []string
	for _, para := range p.paragraphs {
		if chromePlaceholders[para.phType] {
			continue
		}
		if para.phType == "body" {
			body = append(body, para.text)
		} else {
			loose = append(loose, para.text)
		}
	}
	if len(body) > 0 {
		return strings.Join(body, "\n")
	}
	return strings.Join(loose, "\n")
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func hasAttr(el xml.StartElement, local string) bool {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return true
		}
	}
	return false
}
