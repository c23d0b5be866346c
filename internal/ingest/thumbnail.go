package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"runtime"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"slidecast/internal/pptx"
)

const (
	// maxSourcePixels rejects media whose decoded bitmap would be unreasonably
	// large before decoding it.
	maxSourcePixels = 40_000_000
	placeholderURL  = "placeholder://slide/%d"
)

var (
	placeholderBackground = color.NRGBA{R: 0x2b, G: 0x30, B: 0x3a, A: 0xff}
	placeholderForeground = color.NRGBA{R: 0xe5, G: 0xe9, B: 0xf0, A: 0xff}
)

// Thumbnailer renders slide previews. The parsed font is shared; faces are
// created per render because truetype faces are not safe for concurrent use.
type Thumbnailer struct {
	font *truetype.Font
}

// NewThumbnailer returns a thumbnailer drawing placeholder text with f, or
// with the built-in bitmap font when f is nil.
func NewThumbnailer(f *truetype.Font) *Thumbnailer {
	return &Thumbnailer{font: f}
}

// LoadFont parses a TrueType font file for placeholder rendering.
func LoadFont(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	return parsed, nil
}

// Generate renders one thumbnail per slide, fanning out across CPUs. It
// only fails when ctx is cancelled; per-slide failures degrade to
// placeholders.
func (t *Thumbnailer) Generate(ctx context.Context, resolver *pptx.Resolver, slides []pptx.Slide, width int) ([]Thumbnail, error) {
	thumbs := make([]Thumbnail, len(slides))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range slides {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			thumbs[i] = t.Render(resolver, slides[i], width)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return thumbs, nil
}

// Render produces a thumbnail for one slide: its first decodable image, else
// a drawn placeholder, else a placeholder reference.
func (t *Thumbnailer) Render(resolver *pptx.Resolver, slide pptx.Slide, width int) Thumbnail {
	if resolver != nil {
		for _, ref := range slide.Images {
			if thumb, err := t.fromImage(resolver, ref, width); err == nil {
				thumb.SlideIndex = slide.Index
				return thumb
			}
		}
	}
	thumb, err := t.placeholder(slide, width)
	if err != nil {
		return Thumbnail{
			SlideIndex:  slide.Index,
			Placeholder: true,
			URL:         fmt.Sprintf(placeholderURL, slide.Index),
		}
	}
	return thumb
}

func (t *Thumbnailer) fromImage(resolver *pptx.Resolver, ref pptx.ImageRef, width int) (Thumbnail, error) {
	raw, err := resolver.Bytes(ref)
	if err != nil {
		return Thumbnail{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return Thumbnail{}, fmt.Errorf("image dimensions %dx%d out of range", cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.DrawImage(dst, 0, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return Thumbnail{}, fmt.Errorf("encode png: %w", err)
	}
	return Thumbnail{Width: width, Height: height, Data: buf.Bytes()}, nil
}

func (t *Thumbnailer) placeholder(slide pptx.Slide, width int) (Thumbnail, error) {
	height := max(1, width*9/16)
	dc := gg.NewContext(width, height)
	dc.SetColor(placeholderBackground)
	dc.Clear()

	if face := t.face(float64(height) / 8); face != nil {
		dc.SetFontFace(face)
		defer face.Close()
	}
	dc.SetColor(placeholderForeground)
	cx := float64(width) / 2
	dc.DrawStringAnchored(fmt.Sprintf("Slide %d", slide.Index+1), cx, float64(height)*0.35, 0.5, 0.5)
	if slide.Title != "" {
		dc.DrawStringWrapped(slide.Title, cx, float64(height)*0.55, 0.5, 0, float64(width)*0.9, 1.3, gg.AlignCenter)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return Thumbnail{}, fmt.Errorf("encode placeholder: %w", err)
	}
	return Thumbnail{
		SlideIndex:  slide.Index,
		Width:       width,
		Height:      height,
		Data:        buf.Bytes(),
		Placeholder: true,
	}, nil
}

func (t *Thumbnailer) face(size float64) font.Face {
	if t.font == nil {
		return nil
	}
	return truetype.NewFace(t.font, &truetype.Options{
		Size:    max(size, 8),
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
