package templates

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/taxidocs/waybill-server/internal/form"
)

// FieldInfo describes one fillable field discovered in a template.
type FieldInfo struct {
	Name       string `json:"name"`
	Normalized string `json:"normalized"`
	Page       int    `json:"page,omitempty"`
}

// Inspection summarizes a template for administrators checking that a
// freshly uploaded form will match the generated field values.
type Inspection struct {
	Path      string      `json:"path"`
	SizeBytes int64       `json:"size_bytes"`
	PageCount int         `json:"page_count"`
	Fields    []FieldInfo `json:"fields"`
}

// Inspect opens a template and reports its page count and fillable
// fields without modifying it.
func Inspect(path string) (*Inspection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat template: %w", err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	pageCount := reader.NumPage()
	f.Close()

	doc, err := form.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template form: %w", err)
	}
	table, err := form.NewResolver(nil).Resolve(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template fields: %w", err)
	}

	insp := &Inspection{
		Path:      path,
		SizeBytes: info.Size(),
		PageCount: pageCount,
		Fields:    make([]FieldInfo, 0, table.Len()),
	}
	for _, ref := range table.Fields() {
		insp.Fields = append(insp.Fields, FieldInfo{
			Name:       ref.Name,
			Normalized: ref.Normalized,
			Page:       ref.Page,
		})
	}
	return insp, nil
}
