// Package pdftest builds small, valid PDF files in memory for tests.
// Templates in production come from office tools; tests need documents
// with known field layouts, so they are assembled object by object with a
// correctly computed cross-reference table.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Builder assembles a PDF from raw object bodies. Object 1 is assumed to
// be the document catalog.
type Builder struct {
	objs []string
}

// Add appends an object body (the text between "N 0 obj" and "endobj")
// and returns its object number.
func (b *Builder) Add(body string) int {
	b.objs = append(b.objs, body)
	return len(b.objs)
}

// Bytes serializes the document: header, objects, xref table and trailer.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(b.objs))
	for i, body := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, xrefOffset)
	return buf.Bytes()
}

// Widget describes a merged field/widget annotation for SinglePageForm.
type Widget struct {
	Name  string
	Value string
	Flags int // Ff bits; 1 = read-only
	Rect  [4]float64
}

func (w Widget) body(pageRef int) string {
	var sb strings.Builder
	sb.WriteString("<< /Type /Annot /Subtype /Widget /FT /Tx /F 4")
	fmt.Fprintf(&sb, " /T (%s)", w.Name)
	rect := w.Rect
	if rect == ([4]float64{}) {
		rect = [4]float64{50, 700, 250, 720}
	}
	fmt.Fprintf(&sb, " /Rect [%g %g %g %g]", rect[0], rect[1], rect[2], rect[3])
	fmt.Fprintf(&sb, " /P %d 0 R", pageRef)
	sb.WriteString(" /DA (/Helv 0 Tf 0 g)")
	if w.Value != "" {
		fmt.Fprintf(&sb, " /V (%s)", w.Value)
	}
	if w.Flags != 0 {
		fmt.Fprintf(&sb, " /Ff %d", w.Flags)
	}
	sb.WriteString(" >>")
	return sb.String()
}

// SinglePageForm builds a one-page document whose widgets are referenced
// both from the page Annots array and from the AcroForm Fields array, the
// layout office tools commonly produce.
func SinglePageForm(widgets ...Widget) []byte {
	var b Builder
	const (
		catalogRef = 1
		pagesRef   = 2
		pageRef    = 3
	)
	firstWidget := 4

	refs := make([]string, len(widgets))
	for i := range widgets {
		refs[i] = fmt.Sprintf("%d 0 R", firstWidget+i)
	}
	refList := strings.Join(refs, " ")

	b.Add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /AcroForm << /Fields [%s] >> >>", pagesRef, refList))
	b.Add(fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", pageRef))
	b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 595 842] /Resources << >> /Annots [%s] >>", pagesRef, refList))
	for _, w := range widgets {
		b.Add(w.body(pageRef))
	}
	return b.Bytes()
}

// HierarchicalForm builds a one-page document with one page-level widget
// named pageField and a two-level AcroForm tree: a parent named parent
// whose single child is named child (widget on the page as well). The
// parent itself is not a widget.
func HierarchicalForm(pageField, parent, child string) []byte {
	var b Builder
	b.Add("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R 5 0 R] >> >>")
	b.Add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> /Annots [4 0 R 6 0 R] >>")
	b.Add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /F 4 /T (%s) /Rect [50 700 250 720] /P 3 0 R /DA (/Helv 0 Tf 0 g) >>", pageField))
	b.Add(fmt.Sprintf("<< /FT /Tx /T (%s) /Kids [6 0 R] >>", parent))
	b.Add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /F 4 /T (%s) /Parent 5 0 R /Rect [50 650 250 670] /P 3 0 R /DA (/Helv 0 Tf 0 g) >>", child))
	return b.Bytes()
}

// TwoPageForm builds a document with one widget per page, for precedence
// and multi-page rendering tests.
func TwoPageForm(firstName, secondName string) []byte {
	var b Builder
	b.Add("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [5 0 R 6 0 R] >> >>")
	b.Add("<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> /Annots [5 0 R] >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> /Annots [6 0 R] >>")
	b.Add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /F 4 /T (%s) /Rect [50 700 250 720] /P 3 0 R /DA (/Helv 0 Tf 0 g) >>", firstName))
	b.Add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /F 4 /T (%s) /Rect [50 700 250 720] /P 4 0 R /DA (/Helv 0 Tf 0 g) >>", secondName))
	return b.Bytes()
}
