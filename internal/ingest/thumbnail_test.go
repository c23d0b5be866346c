package ingest_test

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"testing"

	"slidecast/internal/ingest"
	"slidecast/internal/pptx"
	"slidecast/internal/testsupport"
)

func TestThumbnailsScaleFirstImage(t *testing.T) {
	data := testsupport.BuildDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{
		{Title: "Photo", Image: testsupport.PNG(t, 200, 100)},
		{Title: "Blank"},
		{Title: "Broken link", ImageMissing: true},
	}})
	doc, _, err := ingest.NewProcessor(nil, nil).Process(context.Background(), "d.pptx", data, ingest.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(doc.Thumbnails) != 3 {
		t.Fatalf("expected 3 thumbnails, got %d", len(doc.Thumbnails))
	}

	photo := doc.Thumbnails[0]
	if photo.Placeholder || photo.Width != 320 || photo.Height != 160 {
		t.Fatalf("unexpected photo thumbnail: %+v", photo)
	}
	img, err := png.Decode(bytes.NewReader(photo.Data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 160 {
		t.Fatalf("thumbnail bounds = %v", b)
	}

	for _, i := range []int{1, 2} {
		thumb := doc.Thumbnails[i]
		if !thumb.Placeholder || thumb.SlideIndex != i || len(thumb.Data) == 0 {
			t.Fatalf("slide %d: expected drawn placeholder, got %+v", i, thumb)
		}
		if thumb.Width != 320 || thumb.Height != 180 {
			t.Fatalf("slide %d: placeholder size %dx%d", i, thumb.Width, thumb.Height)
		}
	}
}

func TestThumbnailCorruptImageFallsBackToPlaceholder(t *testing.T) {
	data := testsupport.BuildDeck(t, testsupport.DeckSpec{Slides: []testsupport.SlideSpec{
		{Title: "Corrupt", Image: []byte("definitely not a png")},
	}})
	doc, _, err := ingest.NewProcessor(nil, nil).Process(context.Background(), "d.pptx", data, ingest.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("a bad image must not fail the document: %v", err)
	}
	if !doc.Thumbnails[0].Placeholder {
		t.Fatalf("expected placeholder, got %+v", doc.Thumbnails[0])
	}
}

func TestThumbnailerRenderWithoutResolver(t *testing.T) {
	thumb := ingest.NewThumbnailer(nil).Render(nil, pptx.Slide{Index: 4, Title: "Closing"}, 160)
	if !thumb.Placeholder || thumb.SlideIndex != 4 || thumb.Width != 160 || thumb.Height != 90 {
		t.Fatalf("unexpected thumbnail: %+v", thumb)
	}
}

func TestThumbnailerGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slides := []pptx.Slide{{Index: 0}, {Index: 1}}
	if _, err := ingest.NewThumbnailer(nil).Generate(ctx, nil, slides, 64); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestLoadFontRejectsGarbage(t *testing.T) {
	path := t.TempDir() + "/bad.ttf"
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ingest.LoadFont(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ingest.LoadFont(path + ".missing"); err == nil {
		t.Fatal("expected read error")
	}
}
