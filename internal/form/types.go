// Package form discovers and fills the named fields of a waybill template.
// Field layouts are not known in advance: templates are scanned for widget
// annotations and AcroForm fields, and values are matched to fields by name.
package form

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FieldRef points at a single fillable field discovered in a template. The
// raw name is preserved for writing; the normalized name is used for
// matching only.
type FieldRef struct {
	Name       string // raw name as extracted from the document
	Normalized string
	Dict       types.Dict // widget annotation or AcroForm field dictionary
	Page       int        // 1-based page number, 0 for form-tree entries
}

// FieldTable is the flat lookup table produced by a single resolve pass.
// It preserves discovery order and keeps the first occurrence of every raw
// name: page-level entries are added before the form-tree walk and are
// never overwritten by it.
type FieldTable struct {
	order []string
	refs  map[string]*FieldRef
}

// NewFieldTable returns an empty table.
func NewFieldTable() *FieldTable {
	return &FieldTable{refs: make(map[string]*FieldRef)}
}

// Add records a field reference unless the raw name is already present.
// It reports whether the entry was added.
func (t *FieldTable) Add(ref *FieldRef) bool {
	if _, exists := t.refs[ref.Name]; exists {
		return false
	}
	t.refs[ref.Name] = ref
	t.order = append(t.order, ref.Name)
	return true
}

// Lookup returns the entry for a raw field name.
func (t *FieldTable) Lookup(raw string) (*FieldRef, bool) {
	ref, ok := t.refs[raw]
	return ref, ok
}

// Fields returns all entries in discovery order.
func (t *FieldTable) Fields() []*FieldRef {
	out := make([]*FieldRef, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.refs[name])
	}
	return out
}

// Len returns the number of discovered fields.
func (t *FieldTable) Len() int {
	return len(t.order)
}

// NormalizeName produces the matching form of a field name: trimmed and
// case-folded. The raw name is kept separately for writing.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StripNameDelimiters removes a single layer of literal wrapping
// parentheses left over from raw PDF name tokens.
func StripNameDelimiters(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")") {
		return name[1 : len(name)-1]
	}
	return name
}

// Presentation carries the visual attributes applied to filled fields.
type Presentation struct {
	FontName    string  // PDF font resource name, e.g. "Helv"
	DefaultSize float64 // points
	// SizeOverrides maps normalized field names to font sizes that take
	// priority over DefaultSize.
	SizeOverrides map[string]float64
}

// DefaultPresentation returns the standard stamp style: 10pt Helvetica
// with a smaller size for the long serial number field.
func DefaultPresentation() Presentation {
	return Presentation{
		FontName:    "Helv",
		DefaultSize: 10,
		SizeOverrides: map[string]float64{
			"serial_number": 8,
		},
	}
}

// SizeFor returns the font size for a field given its normalized name.
func (p Presentation) SizeFor(normalized string) float64 {
	if size, ok := p.SizeOverrides[normalized]; ok && size > 0 {
		return size
	}
	return p.DefaultSize
}
