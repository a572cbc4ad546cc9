package documents_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docrecon-backend/internal/documents"
)

// buildPDF writes a minimal uncompressed PDF with the requested number of blank pages.
func buildPDF(pages int) []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, 0, len(objs))
	for i, obj := range objs {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestInspectPDFCountsPages(t *testing.T) {
	pages, err := documents.InspectPDF(buildPDF(2))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if pages != 2 {
		t.Fatalf("expected 2 pages, got %d", pages)
	}
}

func TestInspectPDFRejectsNonPDF(t *testing.T) {
	cases := map[string][]byte{
		"text":      []byte("hello world"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := documents.InspectPDF(content)
			if !errors.Is(err, documents.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
