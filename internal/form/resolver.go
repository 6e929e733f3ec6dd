package form

import (
	"fmt"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Resolver scans a template for fillable fields and builds the lookup
// table used by the writer. It never mutates the document.
type Resolver struct {
	log *slog.Logger
}

// NewResolver creates a field resolver.
func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log}
}

// Resolve discovers fields in two passes: page-level widget annotations
// first, then the AcroForm field hierarchy with dot-qualified names.
// Page-level entries take precedence; the tree walk never overwrites them.
func (r *Resolver) Resolve(doc *Document) (*FieldTable, error) {
	table := NewFieldTable()
	ctx := doc.Context()

	pages, err := doc.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to walk pages: %w", err)
	}
	for i, page := range pages {
		r.scanPageAnnotations(ctx, page, i+1, table)
	}

	acroDict, err := doc.AcroForm()
	if err != nil {
		return nil, err
	}
	if acroDict != nil {
		r.walkFormTree(ctx, acroDict, table)
	}

	return table, nil
}

// scanPageAnnotations records every named annotation on a page. Fields
// without a name attribute are skipped, not an error.
func (r *Resolver) scanPageAnnotations(ctx *model.Context, page types.Dict, pageNum int, table *FieldTable) {
	annotsObj, found := page.Find("Annots")
	if !found {
		return
	}
	annots, err := ctx.DereferenceArray(annotsObj)
	if err != nil {
		r.log.Warn("skipping unreadable annotation array", "page", pageNum, "error", err)
		return
	}

	for _, obj := range annots {
		annot, err := ctx.DereferenceDict(obj)
		if err != nil || annot == nil {
			continue
		}
		name := fieldName(ctx, annot)
		if name == "" {
			continue
		}
		table.Add(&FieldRef{
			Name:       name,
			Normalized: NormalizeName(name),
			Dict:       annot,
			Page:       pageNum,
		})
	}
}

// walkFormTree records every named field reachable from the AcroForm
// Fields array. Child names are qualified with their parent's name using a
// "." separator; recursion descends into Kids regardless of whether the
// current field had a usable name.
func (r *Resolver) walkFormTree(ctx *model.Context, acroDict types.Dict, table *FieldTable) {
	fieldsObj, found := acroDict.Find("Fields")
	if !found {
		return
	}
	fields, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		r.log.Warn("skipping unreadable AcroForm Fields array", "error", err)
		return
	}
	for _, obj := range fields {
		r.walkField(ctx, obj, "", table, 0)
	}
}

func (r *Resolver) walkField(ctx *model.Context, obj types.Object, prefix string, table *FieldTable, depth int) {
	const maxFieldTreeDepth = 50
	if depth > maxFieldTreeDepth {
		r.log.Warn("field tree nesting limit reached, stopping descent")
		return
	}

	dict, err := ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return
	}

	qualified := prefix
	if name := fieldName(ctx, dict); name != "" {
		if prefix != "" {
			qualified = prefix + "." + name
		} else {
			qualified = name
		}
		table.Add(&FieldRef{
			Name:       qualified,
			Normalized: NormalizeName(qualified),
			Dict:       dict,
		})
	}

	kidsObj, found := dict.Find("Kids")
	if !found {
		return
	}
	kids, err := ctx.DereferenceArray(kidsObj)
	if err != nil {
		return
	}
	for _, kid := range kids {
		r.walkField(ctx, kid, qualified, table, depth+1)
	}
}

// fieldName extracts the raw field name from a T entry, stripping one
// layer of literal wrapping delimiters if present. Empty when the
// dictionary carries no usable name.
func fieldName(ctx *model.Context, dict types.Dict) string {
	nameObj, found := dict.Find("T")
	if !found {
		return ""
	}
	name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil)
	if err != nil {
		return ""
	}
	return StripNameDelimiters(name)
}
