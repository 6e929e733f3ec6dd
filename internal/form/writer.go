package form

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FillStats reports the outcome of a fill pass. Unmatched fields are a
// health signal, not an error: templates legitimately contain
// decorative-only fields.
type FillStats struct {
	Filled    int
	Total     int
	Unmatched []string
}

// Writer matches data keys to discovered fields and writes values along
// with presentation attributes.
type Writer struct {
	log *slog.Logger
}

// NewWriter creates a field writer.
func NewWriter(log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{log: log}
}

type dataKey struct {
	raw        string
	normalized string
}

// sortedKeys orders data keys longest-normalized-first, then
// lexicographically. This makes the qualified-name match rules
// deterministic when one key is a prefix of another ("start_time" beats
// "start").
func sortedKeys(values map[string]string) []dataKey {
	keys := make([]dataKey, 0, len(values))
	for raw := range values {
		keys = append(keys, dataKey{raw: raw, normalized: NormalizeName(raw)})
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i].normalized) != len(keys[j].normalized) {
			return len(keys[i].normalized) > len(keys[j].normalized)
		}
		return keys[i].normalized < keys[j].normalized
	})
	return keys
}

// Fill writes matching values into every field of the table and applies
// presentation attributes. It returns counts of filled versus discovered
// fields; unmatched fields are skipped silently.
func (w *Writer) Fill(doc *Document, table *FieldTable, values map[string]string, pres Presentation) (FillStats, error) {
	stats := FillStats{Total: table.Len()}
	keys := sortedKeys(values)

	for _, ref := range table.Fields() {
		value, ok := matchValue(ref, keys, values)
		if !ok {
			stats.Unmatched = append(stats.Unmatched, ref.Name)
			continue
		}
		w.writeField(doc.Context(), ref, value, pres)
		stats.Filled++
	}

	if stats.Filled > 0 {
		if err := w.markNeedAppearances(doc); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// matchValue finds the best data value for a field. Rules in priority
// order, first match wins:
//  1. raw field name equals a data key exactly (case-sensitive)
//  2. normalized field name equals a normalized data key
//  3. normalized field name is a qualified leaf of a key (suffix ".key")
//  4. normalized field name is a qualified parent of a key (prefix "key.")
func matchValue(ref *FieldRef, keys []dataKey, values map[string]string) (string, bool) {
	if v, ok := values[ref.Name]; ok {
		return v, true
	}
	for _, k := range keys {
		if ref.Normalized == k.normalized {
			return values[k.raw], true
		}
	}
	for _, k := range keys {
		if strings.HasSuffix(ref.Normalized, "."+k.normalized) {
			return values[k.raw], true
		}
	}
	for _, k := range keys {
		if strings.HasPrefix(ref.Normalized, k.normalized+".") {
			return values[k.raw], true
		}
	}
	return "", false
}

// writeField sets the field value and presentation: font at the per-field
// or default size, left alignment when no alignment is present, and an
// editable permission flag. Stale appearance streams are dropped so
// viewers regenerate them from the new value.
func (w *Writer) writeField(ctx *model.Context, ref *FieldRef, value string, pres Presentation) {
	d := ref.Dict

	d["V"] = types.StringLiteral(value)
	d["DA"] = types.StringLiteral(fmt.Sprintf("/%s %g Tf 0 g", pres.FontName, pres.SizeFor(ref.Normalized)))

	if _, found := d.Find("Q"); !found {
		d["Q"] = types.Integer(0)
	}

	if flagsObj, found := d.Find("Ff"); found {
		if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
			d["Ff"] = types.Integer(int(*flags) &^ 1) // clear read-only bit
		}
	}

	delete(d, "AP")
}

// markNeedAppearances asks viewers to rebuild field appearances, since the
// ones shipped with the template no longer reflect the written values.
func (w *Writer) markNeedAppearances(doc *Document) error {
	acroDict, err := doc.AcroForm()
	if err != nil {
		return err
	}
	if acroDict == nil {
		return nil
	}
	acroDict["NeedAppearances"] = types.Boolean(true)
	return nil
}
