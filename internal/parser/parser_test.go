package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-qa/internal/pdftest"
)

func TestParsePDF_ExtractsPagesInOrder(t *testing.T) {
	data := pdftest.Build("Alpha page text", "Beta page text")

	pages, err := ParsePDF(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || pages[1].Number != 2 {
		t.Fatalf("expected page numbers 1 and 2, got %d and %d", pages[0].Number, pages[1].Number)
	}
	if !strings.Contains(pages[0].Text, "Alpha") {
		t.Fatalf("expected first page to contain 'Alpha', got %q", pages[0].Text)
	}
	if !strings.Contains(pages[1].Text, "Beta") {
		t.Fatalf("expected second page to contain 'Beta', got %q", pages[1].Text)
	}
}

func TestParsePDF_EmptyInput(t *testing.T) {
	for _, data := range [][]byte{nil, {}, []byte("  \n\t ")} {
		if _, err := ParsePDF(data); !errors.Is(err, ErrEmptyDocument) {
			t.Fatalf("expected ErrEmptyDocument for %q, got %v", data, err)
		}
	}
}

func TestParsePDF_NotPDF(t *testing.T) {
	_, err := ParsePDF([]byte("just some plain text, definitely not a pdf"))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestParsePDF_LeadingBytesBeforeHeader(t *testing.T) {
	data := append([]byte("\xef\xbb\xbfjunk\n"), pdftest.Build("Leading bytes")...)

	pages, err := ParsePDF(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 || !strings.Contains(pages[0].Text, "Leading") {
		t.Fatalf("unexpected pages: %+v", pages)
	}
}

func TestParsePDF_HeaderTooFarIn(t *testing.T) {
	data := append([]byte(strings.Repeat(" junk", 220)), pdftest.Build("Too far")...)
	if _, err := ParsePDF(data); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestParsePDF_Malformed(t *testing.T) {
	_, err := ParsePDF([]byte("%PDF-1.4\nthis file was truncated"))
	if err == nil {
		t.Fatalf("expected an error for a truncated pdf")
	}
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParsePDF_NoText(t *testing.T) {
	_, err := ParsePDF(pdftest.Build(" ", ""))
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestParsePDFFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, pdftest.Build("Gamma"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	pages, err := ParsePDFFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 || !strings.Contains(pages[0].Text, "Gamma") {
		t.Fatalf("unexpected pages: %+v", pages)
	}

	if _, err := ParsePDFFile(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
