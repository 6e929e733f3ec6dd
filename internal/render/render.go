package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
)

const (
	// DefaultDPI is the rasterization resolution when the caller does
	// not override it. Scale factor relative to PDF units is dpi/72.
	DefaultDPI = 200

	jpegQuality = 95
)

// Renderer turns a flattened document into a single JPEG. Multi-page
// documents are stacked top-to-bottom on a white canvas as wide as the
// widest page.
type Renderer struct {
	ras Rasterizer
	log *slog.Logger
}

// NewRenderer creates a renderer around an optional rasterization
// capability. ras may be nil when no backend was detected.
func NewRenderer(ras Rasterizer, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{ras: ras, log: log}
}

// Available reports whether a rasterization backend is present.
func (r *Renderer) Available() bool {
	return r.ras != nil
}

// RenderJPEG rasterizes all pages of the document at the given DPI and
// encodes the combined image as JPEG. It fails with ErrUnavailable when
// no rasterization backend is present.
func (r *Renderer) RenderJPEG(ctx context.Context, pdfPath string, dpi int) ([]byte, error) {
	if r.ras == nil {
		return nil, ErrUnavailable
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	pages, err := r.ras.RenderPages(ctx, pdfPath, dpi)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("rasterizer returned no pages")
	}

	combined := pages[0]
	if len(pages) > 1 {
		combined = stackVertically(pages)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, combined, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// stackVertically composites page images top-to-bottom. The canvas is as
// wide as the widest page and filled white so narrower pages keep a clean
// margin.
func stackVertically(pages []image.Image) image.Image {
	width, height := 0, 0
	for _, page := range pages {
		bounds := page.Bounds()
		if bounds.Dx() > width {
			width = bounds.Dx()
		}
		height += bounds.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	y := 0
	for _, page := range pages {
		bounds := page.Bounds()
		target := image.Rect(0, y, bounds.Dx(), y+bounds.Dy())
		draw.Draw(canvas, target, page, bounds.Min, draw.Src)
		y += bounds.Dy()
	}
	return canvas
}
