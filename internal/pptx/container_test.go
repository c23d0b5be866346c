package pptx_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"slidecast/internal/pptx"
	"slidecast/internal/services"
	"slidecast/internal/testsupport"
)

func zipOf(t *testing.T, entries map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestOpenContainerSortsSlidesNumerically(t *testing.T) {
	data := testsupport.BuildDeck(t, testsupport.DeckSpec{
		Slides:         []testsupport.SlideSpec{{Title: "Ten"}, {Title: "Two"}, {Title: "Three"}},
		Numbers:        []int{10, 2, 3},
		NoPresentation: true,
	})
	c, err := pptx.OpenContainer(data, pptx.DefaultLimits())
	if err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	got := c.SlideParts()
	want := []string{"ppt/slides/slide2.xml", "ppt/slides/slide3.xml", "ppt/slides/slide10.xml"}
	if len(got) != len(want) {
		t.Fatalf("slide parts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slide parts = %v, want %v", got, want)
		}
	}
}

func TestOpenContainerRequiresSlides(t *testing.T) {
	data := zipOf(t, map[string]string{"[Content_Types].xml": "<Types/>"}, "[Content_Types].xml")
	_, err := pptx.OpenContainer(data, pptx.DefaultLimits())
	if !errors.Is(err, pptx.ErrNoSlides) {
		t.Fatalf("expected ErrNoSlides, got %v", err)
	}
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
}

func TestOpenContainerRejectsUnsafeAndDuplicatePaths(t *testing.T) {
	slide := `<p:sld xmlns:p="p"/>`
	unsafe := zipOf(t, map[string]string{"ppt/slides/slide1.xml": slide, "../evil.xml": "x"}, "ppt/slides/slide1.xml", "../evil.xml")
	if _, err := pptx.OpenContainer(unsafe, pptx.DefaultLimits()); !errors.Is(err, pptx.ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}

	dup := zipOf(t, map[string]string{"ppt/slides/slide1.xml": slide, "/ppt/slides/slide1.xml": slide}, "ppt/slides/slide1.xml", "/ppt/slides/slide1.xml")
	_, err := pptx.OpenContainer(dup, pptx.DefaultLimits())
	if !errors.Is(err, pptx.ErrDuplicatePart) {
		t.Fatalf("expected ErrDuplicatePart, got %v", err)
	}
	var perr *pptx.ParseError
	if !errors.As(err, &perr) || perr.Part != "ppt/slides/slide1.xml" {
		t.Fatalf("expected ParseError naming the part, got %#v", err)
	}
}

func TestOpenContainerEnforcesSizeLimits(t *testing.T) {
	data := testsupport.BuildDeck(t, testsupport.DeckSpec{
		Slides: []testsupport.SlideSpec{{Title: "Big", Body: []string{string(bytes.Repeat([]byte("a"), 4096))}}},
	})
	if _, err := pptx.OpenContainer(data, pptx.Limits{MaxPartBytes: 1024}); !errors.Is(err, pptx.ErrPartTooLarge) {
		t.Fatalf("expected ErrPartTooLarge, got %v", err)
	}
	if _, err := pptx.OpenContainer(data, pptx.Limits{MaxTotalBytes: 2048}); !errors.Is(err, pptx.ErrContainerTooLarge) && !errors.Is(err, pptx.ErrPartTooLarge) {
		t.Fatalf("expected size limit error, got %v", err)
	}
	if _, err := pptx.OpenContainer(data, pptx.Limits{MaxParts: 2}); !errors.Is(err, pptx.ErrTooManyParts) {
		t.Fatalf("expected ErrTooManyParts, got %v", err)
	}
}

func TestOpenContainerRejectsGarbage(t *testing.T) {
	_, err := pptx.OpenContainer([]byte("PK\x03\x04garbage"), pptx.DefaultLimits())
	var perr *pptx.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
