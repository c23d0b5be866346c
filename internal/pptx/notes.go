package pptx

import "fmt"

// readNotes returns the speaker notes linked from a slide. A missing notes
// relationship is normal; a broken one degrades to a warning because notes
// are optional content.
func readNotes(c *Container, slidePart string, rels Relationships) (string, *Warning) {
	rel, ok := rels.FirstOfType(relTypeNotesSlide)
	if !ok || rel.External {
		return "", nil
	}
	target, ok := resolveTarget(slidePart, rel.Target)
	if !ok || !c.Has(target) {
		return "", &Warning{
			Part:    slidePart,
			Code:    WarnMalformedNotes,
			Message: fmt.Sprintf("notes relationship %s targets missing part %q", rel.ID, rel.Target),
		}
	}
	data, err := c.Read(target)
	if err != nil {
		return "", &Warning{Part: target, Code: WarnMalformedNotes, Message: err.Error()}
	}
	parsed, err := parseSlideXML(data)
	if err != nil {
		return "", &Warning{Part: target, Code: WarnMalformedNotes, Message: err.Error()}
	}
	return parsed.notesText(), nil
}
