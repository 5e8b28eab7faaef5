package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// writeBlankPDF writes a structurally valid PDF with the given number of empty pages.
func writeBlankPDF(t *testing.T, pages int) string {
	t.Helper()

	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), fmt.Sprintf("blank_%d.pdf", pages))
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestCountPages(t *testing.T) {
	c := NewCounter()
	for _, pages := range []int{1, 5} {
		got, err := c.CountPages(writeBlankPDF(t, pages))
		if err != nil {
			t.Fatalf("CountPages() error = %v", err)
		}
		if got != pages {
			t.Fatalf("expected %d pages, got %d", pages, got)
		}
	}
}

func TestCountPagesRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(path, []byte("just text, no pdf here"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewCounter().CountPages(path)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWritePropertiesKeepsDocumentReadable(t *testing.T) {
	path := writeBlankPDF(t, 2)

	err := NewPropertyWriter().WriteProperties(path, map[string]string{
		"SignedBy":      "Jane Roe",
		"SignatureKind": "metadata-only",
		"Empty":         "",
	})
	if err != nil {
		t.Fatalf("WriteProperties() error = %v", err)
	}

	got, err := NewCounter().CountPages(path)
	if err != nil || got != 2 {
		t.Fatalf("expected 2 readable pages after rewrite, got %d err=%v", got, err)
	}
}
