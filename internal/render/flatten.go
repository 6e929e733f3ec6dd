// Package render bakes filled field values into static page content and
// rasterizes documents to images. Downstream renderers frequently ignore
// interactive form values, so flattening keeps them visible.
package render

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/taxidocs/waybill-server/internal/form"
)

// Text inset from the widget rectangle's lower-left corner, in points.
const textInset = 2.0

// Flattener draws widget values as static page text and removes the
// interactive widgets afterwards. Flattening exists purely so values
// survive rasterization: when no rasterization capability is present it
// is skipped with a warning and the filled document is left as-is.
type Flattener struct {
	available bool
	log       *slog.Logger
}

// NewFlattener creates a flattener. available reflects whether a
// rasterization capability was resolved at startup.
func NewFlattener(available bool, log *slog.Logger) *Flattener {
	if log == nil {
		log = slog.Default()
	}
	return &Flattener{available: available, log: log}
}

// Flatten bakes every non-empty widget value on every page into the page
// content stream, then removes the widgets from the page so only baked
// text remains.
func (f *Flattener) Flatten(doc *form.Document, pres form.Presentation) error {
	if !f.available {
		f.log.Warn("rasterization backend unavailable, skipping flatten; document keeps interactive fields only")
		return nil
	}

	ctx := doc.Context()
	pages, err := doc.Pages()
	if err != nil {
		return err
	}

	for i, page := range pages {
		if err := f.flattenPage(ctx, page, pres); err != nil {
			return fmt.Errorf("failed to flatten page %d: %w", i+1, err)
		}
	}
	return nil
}

func (f *Flattener) flattenPage(ctx *model.Context, page types.Dict, pres form.Presentation) error {
	annotsObj, found := page.Find("Annots")
	if !found {
		return nil
	}
	annots, err := ctx.DereferenceArray(annotsObj)
	if err != nil {
		return nil
	}

	var content strings.Builder
	kept := types.Array{}
	removed := false

	for _, obj := range annots {
		annot, err := ctx.DereferenceDict(obj)
		if err != nil || annot == nil || !isWidget(ctx, annot) {
			kept = append(kept, obj)
			continue
		}

		value := widgetValue(ctx, annot)
		if value != "" {
			rect, ok := widgetRect(ctx, annot)
			if !ok {
				// Without a rectangle there is nowhere to bake the
				// text. Keep the widget so the value is not lost.
				f.log.Warn("widget has a value but no usable rectangle, keeping it interactive",
					"field", widgetNormalizedName(ctx, annot))
				kept = append(kept, obj)
				continue
			}
			size := pres.SizeFor(widgetNormalizedName(ctx, annot))
			writeTextOp(&content, pres.FontName, size, rect[0]+textInset, rect[1]+textInset, value)
		}
		removed = true
	}

	if content.Len() > 0 {
		if err := ensureFontResource(ctx, page, pres.FontName); err != nil {
			return err
		}
		if err := appendContent(ctx, page, []byte(content.String())); err != nil {
			return err
		}
	}

	if removed {
		if len(kept) == 0 {
			delete(page, "Annots")
		} else {
			page["Annots"] = kept
		}
	}
	return nil
}

// writeTextOp emits one text run: black, non-stroking fill, anchored near
// the bottom-left of the widget rectangle.
func writeTextOp(sb *strings.Builder, font string, size, x, y float64, text string) {
	fmt.Fprintf(sb, "q\nBT\n/%s %g Tf\n0 g\n0 Tr\n%g %g Td\n(%s) Tj\nET\nQ\n", font, size, x, y, escapeText(text))
}

// escapeText escapes the characters with special meaning inside a PDF
// string literal.
func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

func isWidget(ctx *model.Context, annot types.Dict) bool {
	subObj, found := annot.Find("Subtype")
	if !found {
		return false
	}
	name, err := ctx.DereferenceName(subObj, model.V10, nil)
	return err == nil && name == "Widget"
}

func widgetValue(ctx *model.Context, annot types.Dict) string {
	valObj, found := annot.Find("V")
	if !found {
		// Merged widgets inherit the value from their parent field.
		if parentObj, ok := annot.Find("Parent"); ok {
			if parent, err := ctx.DereferenceDict(parentObj); err == nil && parent != nil {
				valObj, found = parent.Find("V")
			}
		}
	}
	if !found {
		return ""
	}
	value, err := ctx.DereferenceStringOrHexLiteral(valObj, model.V10, nil)
	if err != nil {
		return ""
	}
	return value
}

func widgetNormalizedName(ctx *model.Context, annot types.Dict) string {
	nameObj, found := annot.Find("T")
	if !found {
		return ""
	}
	name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil)
	if err != nil {
		return ""
	}
	return form.NormalizeName(form.StripNameDelimiters(name))
}

func widgetRect(ctx *model.Context, annot types.Dict) ([4]float64, bool) {
	var rect [4]float64
	rectObj, found := annot.Find("Rect")
	if !found {
		return rect, false
	}
	arr, err := ctx.DereferenceArray(rectObj)
	if err != nil || len(arr) != 4 {
		return rect, false
	}
	for i, coord := range arr {
		f, err := ctx.DereferenceNumber(coord)
		if err != nil {
			return rect, false
		}
		rect[i] = f
	}
	return rect, true
}

// ensureFontResource guarantees the page resources carry the font used by
// the baked text runs.
func ensureFontResource(ctx *model.Context, page types.Dict, fontName string) error {
	resources, err := ctx.DereferenceDict(page["Resources"])
	if err != nil || resources == nil {
		resources = types.Dict{}
		page["Resources"] = resources
	}

	fonts, err := ctx.DereferenceDict(resources["Font"])
	if err != nil || fonts == nil {
		fonts = types.Dict{}
		resources["Font"] = fonts
	}

	if _, found := fonts.Find(fontName); found {
		return nil
	}

	fontDict := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	}
	ir, err := ctx.IndRefForNewObject(fontDict)
	if err != nil {
		return fmt.Errorf("failed to register font resource: %w", err)
	}
	fonts[fontName] = *ir
	return nil
}

// appendContent adds a new content stream after the page's existing
// streams so the baked text draws on top.
func appendContent(ctx *model.Context, page types.Dict, buf []byte) error {
	sd, err := ctx.NewStreamDictForBuf(buf)
	if err != nil {
		return fmt.Errorf("failed to build content stream: %w", err)
	}
	if err := sd.Encode(); err != nil {
		return fmt.Errorf("failed to encode content stream: %w", err)
	}
	ir, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return fmt.Errorf("failed to register content stream: %w", err)
	}

	contentsObj, found := page.Find("Contents")
	if !found {
		page["Contents"] = *ir
		return nil
	}
	switch contents := contentsObj.(type) {
	case types.Array:
		page["Contents"] = append(contents, *ir)
	default:
		page["Contents"] = types.Array{contentsObj, *ir}
	}
	return nil
}
