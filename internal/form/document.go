package form

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Document is an in-memory waybill template. It is scoped to a single
// fill-and-render operation and mutated in place by filling and
// flattening.
type Document struct {
	ctx *model.Context
}

// Load reads a PDF template from disk. Validation is relaxed: templates
// produced by office tools are frequently not strictly conformant.
func Load(path string) (*Document, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	return LoadBytes(buf)
}

// LoadBytes builds a Document from raw PDF bytes.
func LoadBytes(buf []byte) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(buf), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}
	return &Document{ctx: ctx}, nil
}

// Context exposes the underlying pdfcpu context.
func (d *Document) Context() *model.Context {
	return d.ctx
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Write persists the document to the given path.
func (d *Document) Write(path string) error {
	if err := api.WriteContextFile(d.ctx, path); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// Pages returns the leaf page dictionaries in page order.
func (d *Document) Pages() ([]types.Dict, error) {
	rootDict, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	pagesObj, found := rootDict.Find("Pages")
	if !found {
		return nil, fmt.Errorf("document has no page tree")
	}

	var pages []types.Dict
	if err := d.collectPages(pagesObj, &pages, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

// collectPages walks the page tree depth-first. Depth is bounded to guard
// against cyclic Kids references in damaged files.
func (d *Document) collectPages(obj types.Object, pages *[]types.Dict, depth int) error {
	const maxPageTreeDepth = 50
	if depth > maxPageTreeDepth {
		return fmt.Errorf("page tree nesting exceeds %d levels", maxPageTreeDepth)
	}

	dict, err := d.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return err
	}

	typ := ""
	if typObj, found := dict.Find("Type"); found {
		if name, err := d.ctx.DereferenceName(typObj, model.V10, nil); err == nil {
			typ = string(name)
		}
	}

	switch typ {
	case "Pages":
		kidsObj, found := dict.Find("Kids")
		if !found {
			return nil
		}
		kids, err := d.ctx.DereferenceArray(kidsObj)
		if err != nil {
			return fmt.Errorf("failed to dereference Kids array: %w", err)
		}
		for _, kid := range kids {
			if err := d.collectPages(kid, pages, depth+1); err != nil {
				return err
			}
		}
	case "Page":
		*pages = append(*pages, dict)
	}
	return nil
}

// AcroForm returns the document's AcroForm dictionary, or nil when the
// document exposes no form hierarchy.
func (d *Document) AcroForm() (types.Dict, error) {
	rootDict, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	acroObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroDict, err := d.ctx.DereferenceDict(acroObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	return acroDict, nil
}
