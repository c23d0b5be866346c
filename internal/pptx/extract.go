package pptx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	presentationPart = "ppt/presentation.xml"
	relationshipsNS  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// Extract reads every slide in presentation order.
func Extract(c *Container) ([]Slide, []Warning, error) {
	order, warnings, err := SlideOrder(c)
	if err != nil {
		return nil, nil, err
	}
	slides := make([]Slide, 0, len(order))
	for i, part := range order {
		slide, slideWarnings, err := ExtractSlide(c, part, i)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, slideWarnings...)
		slides = append(slides, slide)
	}
	return slides, warnings, nil
}

// SlideOrder returns slide part names in presentation order. The
// p:sldIdLst of ppt/presentation.xml wins when every entry resolves to a
// distinct slide part; otherwise parts are ordered by their numeric suffix.
// Slide parts not referenced by a consistent list are dropped with a warning,
// matching what PowerPoint shows.
func SlideOrder(c *Container) ([]string, []Warning, error) {
	numeric := c.SlideParts()
	if !c.Has(presentationPart) {
		return numeric, nil, nil
	}

	fallback := func(reason string) ([]string, []Warning, error) {
		return numeric, []Warning{{Part: presentationPart, Code: WarnSlideOrder, Message: reason + "; using numeric slide order"}}, nil
	}

	data, err := c.Read(presentationPart)
	if err != nil {
		return nil, nil, err
	}
	relIDs, err := slideIDList(data)
	if err != nil {
		return fallback(fmt.Sprintf("read slide list: %v", err))
	}
	if len(relIDs) == 0 {
		return numeric, nil, nil
	}
	rels, err := c.Relationships(presentationPart)
	if err != nil {
		return fallback(fmt.Sprintf("read presentation relationships: %v", err))
	}

	seen := make(map[string]bool, len(relIDs))
	ordered := make([]string, 0, len(relIDs))
	for _, id := range relIDs {
		rel, ok := rels[id]
		if !ok || rel.External {
			return fallback(fmt.Sprintf("slide relationship %s does not resolve", id))
		}
		target, ok := resolveTarget(presentationPart, rel.Target)
		if !ok || !slidePartPattern.MatchString(target) || !c.Has(target) {
			return fallback(fmt.Sprintf("slide relationship %s targets %q", id, rel.Target))
		}
		if seen[target] {
			return fallback(fmt.Sprintf("slide %s listed twice", target))
		}
		seen[target] = true
		ordered = append(ordered, target)
	}

	var warnings []Warning
	for _, part := range numeric {
		if !seen[part] {
			warnings = append(warnings, Warning{Part: part, Code: WarnSlideOrder, Message: "slide part is not referenced by the presentation and was skipped"})
		}
	}
	return ordered, warnings, nil
}

func slideIDList(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var ids []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "sldId" {
			continue
		}
		for _, a := range el.Attr {
			if a.Name.Local == "id" && a.Name.Space == relationshipsNS {
				ids = append(ids, a.Value)
			}
		}
	}
}

// ExtractSlide parses one slide part. Malformed slide XML or relationships
// are a ParseError; unresolved media and timing problems are warnings.
func ExtractSlide(c *Container, part string, index int) (Slide, []Warning, error) {
	data, err := c.Read(part)
	if err != nil {
		return Slide{}, nil, err
	}
	parsed, err := parseSlideXML(data)
	if err != nil {
		return Slide{}, nil, parseErr(part, err)
	}
	rels, err := c.Relationships(part)
	if err != nil {
		return Slide{}, nil, err
	}

	title, body := parsed.titleAndBody()
	slide := Slide{
		Index:               index,
		PartPath:            part,
		Title:               title,
		TextBlocks:          body,
		Shapes:              parsed.shapes,
		Hidden:              parsed.hidden,
		AdvanceAfterSeconds: parsed.advanceAfter,
	}
	if slide.TextBlocks == nil {
		slide.TextBlocks = []string{}
	}
	if slide.Shapes == nil {
		slide.Shapes = []ShapeRef{}
	}

	var warnings []Warning
	resolver := NewResolver(c)
	slide.Images = make([]ImageRef, 0, len(parsed.images))
	for _, hit := range parsed.images {
		ref, warn := resolver.ResolveImage(part, rels, hit.relID)
		if warn != nil {
			warnings = append(warnings, *warn)
			continue
		}
		ref.Width = emuToPixels(hit.cx)
		ref.Height = emuToPixels(hit.cy)
		slide.Images = append(slide.Images, ref)
	}

	slide.Animations = make([]AnimationHint, 0, len(parsed.builds)+1)
	if parsed.transition != nil {
		slide.Animations = append(slide.Animations, *parsed.transition)
	}
	slide.Animations = append(slide.Animations, parsed.builds...)
	for _, issue := range parsed.issues {
		warnings = append(warnings, Warning{Part: part, Code: WarnMalformedTiming, Message: issue})
	}

	notes, warn := readNotes(c, part, rels)
	if warn != nil {
		warnings = append(warnings, *warn)
	}
	slide.Notes = notes

	return slide, warnings, nil
}
