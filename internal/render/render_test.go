package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxidocs/waybill-server/internal/form"
	"github.com/taxidocs/waybill-server/internal/pdftest"
)

type stubRasterizer struct {
	pages []image.Image
	err   error
}

func (s *stubRasterizer) RenderPages(_ context.Context, _ string, _ int) ([]image.Image, error) {
	return s.pages, s.err
}

func solidPage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRenderJPEG_SinglePage(t *testing.T) {
	ras := &stubRasterizer{pages: []image.Image{solidPage(100, 150, color.White)}}
	r := NewRenderer(ras, nil)

	data, err := r.RenderJPEG(context.Background(), "ignored.pdf", 0)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// JPEG SOI marker.
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}

func TestRenderJPEG_MultiPageStacking(t *testing.T) {
	ras := &stubRasterizer{pages: []image.Image{
		solidPage(100, 150, color.White),
		solidPage(80, 120, color.Black),
	}}
	r := NewRenderer(ras, nil)

	data, err := r.RenderJPEG(context.Background(), "ignored.pdf", 200)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx(), "canvas width is the max page width")
	assert.Equal(t, 270, img.Bounds().Dy(), "pages are stacked vertically")

	// The margin right of the narrow second page stays white.
	r8, g8, b8, _ := img.At(95, 200).RGBA()
	assert.Greater(t, r8, uint32(0xF000))
	assert.Greater(t, g8, uint32(0xF000))
	assert.Greater(t, b8, uint32(0xF000))
}

func TestRenderJPEG_Unavailable(t *testing.T) {
	r := NewRenderer(nil, nil)
	assert.False(t, r.Available())

	_, err := r.RenderJPEG(context.Background(), "ignored.pdf", 200)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func testPresentation() form.Presentation {
	return form.Presentation{FontName: "Helv", DefaultSize: 10}
}

func fillTestDoc(t *testing.T, buf []byte, values map[string]string) *form.Document {
	t.Helper()
	doc, err := form.LoadBytes(buf)
	require.NoError(t, err)
	table, err := form.NewResolver(nil).Resolve(doc)
	require.NoError(t, err)
	_, err = form.NewWriter(nil).Fill(doc, table, values, testPresentation())
	require.NoError(t, err)
	return doc
}

func TestFlatten_BakesValuesAndRemovesWidgets(t *testing.T) {
	doc := fillTestDoc(t, pdftest.SinglePageForm(
		pdftest.Widget{Name: "start_time"},
		pdftest.Widget{Name: "signature"}, // stays empty
	), map[string]string{"start_time": "08:00"})

	f := NewFlattener(true, nil)
	require.NoError(t, f.Flatten(doc, testPresentation()))

	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	page := pages[0]

	_, found := page.Find("Annots")
	assert.False(t, found, "widgets must be removed after baking")

	_, found = page.Find("Contents")
	assert.True(t, found, "baked text must be appended to page content")

	resources, err := doc.Context().DereferenceDict(page["Resources"])
	require.NoError(t, err)
	fonts, err := doc.Context().DereferenceDict(resources["Font"])
	require.NoError(t, err)
	_, found = fonts.Find("Helv")
	assert.True(t, found, "font resource must be registered")
}

func TestFlatten_SkippedWhenUnavailable(t *testing.T) {
	doc := fillTestDoc(t, pdftest.SinglePageForm(
		pdftest.Widget{Name: "start_time"},
	), map[string]string{"start_time": "08:00"})

	f := NewFlattener(false, nil)
	require.NoError(t, f.Flatten(doc, testPresentation()))

	pages, err := doc.Pages()
	require.NoError(t, err)
	_, found := pages[0].Find("Annots")
	assert.True(t, found, "degraded mode must leave the document untouched")
}

func TestFlatten_KeepsNonWidgetAnnotations(t *testing.T) {
	doc := fillTestDoc(t, pdftest.SinglePageForm(
		pdftest.Widget{Name: "start_time"},
	), map[string]string{"start_time": "08:00"})

	pages, err := doc.Pages()
	require.NoError(t, err)
	page := pages[0]

	// Add a link annotation alongside the widget.
	annots, err := doc.Context().DereferenceArray(page["Annots"])
	require.NoError(t, err)
	link := types.Dict{"Type": types.Name("Annot"), "Subtype": types.Name("Link")}
	page["Annots"] = append(annots, link)

	f := NewFlattener(true, nil)
	require.NoError(t, f.Flatten(doc, testPresentation()))

	kept, err := doc.Context().DereferenceArray(page["Annots"])
	require.NoError(t, err)
	require.Len(t, kept, 1)
}

func TestFlatten_KeepsValuedWidgetWithoutRect(t *testing.T) {
	doc := fillTestDoc(t, pdftest.SinglePageForm(
		pdftest.Widget{Name: "start_time"},
		pdftest.Widget{Name: "odometr"},
	), map[string]string{"start_time": "08:00", "odometr": "54321"})

	pages, err := doc.Pages()
	require.NoError(t, err)
	page := pages[0]

	// Strip the rectangle from one widget: its value cannot be baked.
	annots, err := doc.Context().DereferenceArray(page["Annots"])
	require.NoError(t, err)
	require.Len(t, annots, 2)
	second, err := doc.Context().DereferenceDict(annots[1])
	require.NoError(t, err)
	delete(second, "Rect")

	f := NewFlattener(true, nil)
	require.NoError(t, f.Flatten(doc, testPresentation()))

	kept, err := doc.Context().DereferenceArray(page["Annots"])
	require.NoError(t, err)
	require.Len(t, kept, 1, "the widget whose value could not be baked must survive")

	survivor, err := doc.Context().DereferenceDict(kept[0])
	require.NoError(t, err)
	obj, found := survivor.Find("V")
	require.True(t, found)
	lit, ok := obj.(types.StringLiteral)
	require.True(t, ok)
	assert.Equal(t, "54321", lit.Value())
}

func TestEscapeText(t *testing.T) {
	assert.Equal(t, `a\(b\)c`, escapeText("a(b)c"))
	assert.Equal(t, `back\\slash`, escapeText(`back\slash`))
	assert.Equal(t, "08:00", escapeText("08:00"))
}
