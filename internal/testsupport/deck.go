package testsupport

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"
)

const (
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsP14 = "http://schemas.microsoft.com/office/powerpoint/2010/main"

	relSlide      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relImage      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	relNotes      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	relSlideLayer = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
)

// SlideSpec describes one generated slide.
type SlideSpec struct {
	Title string
	Body  []string
	Notes string
	// Image adds a picture shape backed by ppt/media/imageN.png.
	Image []byte
	// ImageMissing adds a picture whose relationship targets a part that is
	// not in the package.
	ImageMissing bool
	// ImageExternal adds a picture linked to an external URL.
	ImageExternal bool
	// Transition names a p:transition effect element such as "push".
	Transition      string
	TransitionDurMs int
	AdvanceMs       int
	Hidden          bool
	// Timing is inserted verbatim as the slide's p:timing element.
	Timing string
	// RawXML replaces the generated slide part entirely.
	RawXML string
}

// DeckSpec describes a generated PPTX package.
type DeckSpec struct {
	Slides  []SlideSpec
	Title   string
	Author  string
	Created time.Time
	// Numbers overrides the N in ppt/slides/slideN.xml per slide.
	Numbers []int
	// Order lists slide indexes in presentation order. Defaults to the order of Slides.
	Order []int
	// NoPresentation omits ppt/presentation.xml and its relationships.
	NoPresentation bool
	// Extra adds arbitrary parts.
	Extra map[string][]byte
}

// BuildDeck writes a real zip container for spec.
func BuildDeck(t testing.TB, spec DeckSpec) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("[Content_Types].xml", contentTypesXML)
	numbers := make([]int, len(spec.Slides))
	for i := range spec.Slides {
		numbers[i] = i + 1
		if i < len(spec.Numbers) {
			numbers[i] = spec.Numbers[i]
		}
	}

	if !spec.NoPresentation {
		order := spec.Order
		if len(order) == 0 {
			order = make([]int, len(spec.Slides))
			for i := range order {
				order[i] = i
			}
		}
		var ids, rels strings.Builder
		for pos, idx := range order {
			relID := fmt.Sprintf("rId%d", pos+2)
			fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="%s"/>`, 256+pos, relID)
			fmt.Fprintf(&rels, `<Relationship Id="%s" Type="%s" Target="slides/slide%d.xml"/>`, relID, relSlide, numbers[idx])
		}
		write("ppt/presentation.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"><p:sldIdLst>%s</p:sldIdLst><p:sldSz cx="12192000" cy="6858000"/></p:presentation>`, nsA, nsR, nsP, ids.String()))
		write("ppt/_rels/presentation.xml.rels", relsDocument(rels.String()))
	}

	if spec.Title != "" || spec.Author != "" || !spec.Created.IsZero() {
		created := ""
		if !spec.Created.IsZero() {
			created = fmt.Sprintf(`<dcterms:created xsi:type="dcterms:W3CDTF">%s</dcterms:created>`, spec.Created.UTC().Format(time.RFC3339))
		}
		write("docProps/core.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><dc:title>%s</dc:title><dc:creator>%s</dc:creator>%s</cp:coreProperties>`, escape(spec.Title), escape(spec.Author), created))
	}

	for i, slide := range spec.Slides {
		n := numbers[i]
		if slide.RawXML != "" {
			write(fmt.Sprintf("ppt/slides/slide%d.xml", n), slide.RawXML)
			continue
		}
		var rels strings.Builder
		fmt.Fprintf(&rels, `<Relationship Id="rId1" Type="%s" Target="../slideLayouts/slideLayout1.xml"/>`, relSlideLayer)
		switch {
		case slide.ImageExternal:
			fmt.Fprintf(&rels, `<Relationship Id="rId2" Type="%s" Target="https://example.com/photo.png" TargetMode="External"/>`, relImage)
		case slide.ImageMissing:
			fmt.Fprintf(&rels, `<Relationship Id="rId2" Type="%s" Target="../media/missing%d.png"/>`, relImage, n)
		case slide.Image != nil:
			fmt.Fprintf(&rels, `<Relationship Id="rId2" Type="%s" Target="../media/image%d.png"/>`, relImage, n)
			w, err := zw.Create(fmt.Sprintf("ppt/media/image%d.png", n))
			if err != nil {
				t.Fatalf("create media: %v", err)
			}
			if _, err := w.Write(slide.Image); err != nil {
				t.Fatalf("write media: %v", err)
			}
		}
		if slide.Notes != "" {
			fmt.Fprintf(&rels, `<Relationship Id="rId3" Type="%s" Target="../notesSlides/notesSlide%d.xml"/>`, relNotes, n)
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), notesXML(slide.Notes))
		}
		write(fmt.Sprintf("ppt/slides/slide%d.xml", n), slideXML(slide))
		write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), relsDocument(rels.String()))
	}

	for name, data := range spec.Extra {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// SimpleDeck builds a deck with one titled slide per argument, each with a
// single body paragraph.
func SimpleDeck(t testing.TB, titles ...string) []byte {
	t.Helper()
	slides := make([]SlideSpec, len(titles))
	for i, title := range titles {
		slides[i] = SlideSpec{Title: title, Body: []string{fmt.Sprintf("Point %d", i+1)}}
	}
	return BuildDeck(t, DeckSpec{Slides: slides})
}

// PNG encodes a solid-color image.
func PNG(t testing.TB, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func slideXML(spec SlideSpec) string {
	var b strings.Builder
	show := ""
	if spec.Hidden {
		show = ` show="0"`
	}
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"%s><p:cSld><p:spTree>`, nsA, nsR, nsP, show)
	b.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>`)
	if spec.Title != "" {
		fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>`, escape(spec.Title))
	}
	if len(spec.Body) > 0 {
		b.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Content 2"/><p:cNvSpPr/><p:nvPr><p:ph idx="1"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/>`)
		for _, para := range spec.Body {
			fmt.Fprintf(&b, `<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, escape(para))
		}
		b.WriteString(`</p:txBody></p:sp>`)
	}
	if spec.Image != nil || spec.ImageMissing || spec.ImageExternal {
		b.WriteString(`<p:pic><p:nvPicPr><p:cNvPr id="4" name="Picture 3"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr><p:blipFill><a:blip r:embed="rId2"/></p:blipFill><p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="1905000" cy="952500"/></a:xfrm></p:spPr></p:pic>`)
	}
	b.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`)
	if spec.Transition != "" || spec.AdvanceMs > 0 {
		attrs := ""
		if spec.TransitionDurMs > 0 {
			attrs += fmt.Sprintf(` xmlns:p14="%s" p14:dur="%d"`, nsP14, spec.TransitionDurMs)
		}
		if spec.AdvanceMs > 0 {
			attrs += fmt.Sprintf(` advTm="%d"`, spec.AdvanceMs)
		}
		effect := ""
		if spec.Transition != "" {
			effect = fmt.Sprintf(`<p:%s/>`, spec.Transition)
		}
		fmt.Fprintf(&b, `<p:transition%s>%s</p:transition>`, attrs, effect)
	}
	b.WriteString(spec.Timing)
	b.WriteString(`</p:sld>`)
	return b.String()
}

func notesXML(notes string) string {
	var paras strings.Builder
	for _, line := range strings.Split(notes, "\n") {
		fmt.Fprintf(&paras, `<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, escape(line))
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:notes xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"><p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/><p:sp><p:nvSpPr><p:cNvPr id="2" name="Slide Image Placeholder 1"/><p:cNvSpPr/><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr><p:spPr/></p:sp><p:sp><p:nvSpPr><p:cNvPr id="3" name="Notes Placeholder 2"/><p:cNvSpPr/><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/>%s</p:txBody></p:sp><p:sp><p:nvSpPr><p:cNvPr id="4" name="Slide Number Placeholder 3"/><p:cNvSpPr/><p:nvPr><p:ph type="sldNum" idx="5"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:p><a:r><a:t>1</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:notes>`, nsA, nsR, nsP, paras.String())
}

func relsDocument(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` + body + `</Relationships>`
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Default Extension="png" ContentType="image/png"/></Types>`
