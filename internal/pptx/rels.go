package pptx

import (
	"encoding/xml"
	"path"
	"strings"
)

// Relationship types are matched by suffix so both the transitional and
// strict OOXML namespaces resolve.
const (
	relTypeSlide      = "/slide"
	relTypeImage      = "/image"
	relTypeNotesSlide = "/notesSlide"
)

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID       string
	Type     string
	Target   string
	External bool
}

// Relationships indexes a .rels part by relationship ID.
type Relationships map[string]Relationship

type relsXML struct {
	Items []struct {
		ID         string `xml:"Id,attr"`
		Type       string `xml:"Type,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

func relsPartFor(part string) string {
	dir, base := path.Split(part)
	return dir + "_rels/" + base + ".rels"
}

// Relationships loads the companion .rels part of source. A missing .rels
// part yields an empty set; a malformed one is a ParseError.
func (c *Container) Relationships(source string) (Relationships, error) {
	relsPart := relsPartFor(source)
	if !c.Has(relsPart) {
		return Relationships{}, nil
	}
	data, err := c.Read(relsPart)
	if err != nil {
		return nil, err
	}
	var doc relsXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, parseErr(relsPart, err)
	}
	out := make(Relationships, len(doc.Items))
	for _, item := range doc.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		out[id] = Relationship{
			ID:       id,
			Type:     strings.TrimSpace(item.Type),
			Target:   strings.TrimSpace(item.Target),
			External: strings.EqualFold(strings.TrimSpace(item.TargetMode), "External"),
		}
	}
	return out, nil
}

// FirstOfType returns the first relationship whose type ends with suffix, in
// ID order so the choice is stable.
func (r Relationships) FirstOfType(suffix string) (Relationship, bool) {
	var (
		best  Relationship
		found bool
	)
	for _, rel := range r {
		if !strings.HasSuffix(rel.Type, suffix) {
			continue
		}
		if !found || rel.ID < best.ID {
			best = rel
			found = true
		}
	}
	return best, found
}

// resolveTarget resolves a relationship target against the directory of the
// source part. Absolute targets are rooted at the package root.
func resolveTarget(source, target string) (string, bool) {
	target = strings.ReplaceAll(target, "\\", "/")
	if target == "" {
		return "", false
	}
	var joined string
	if strings.HasPrefix(target, "/") {
		joined = strings.TrimLeft(target, "/")
	} else {
		joined = path.Join(path.Dir(source), target)
	}
	cleaned := path.Clean(joined)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
