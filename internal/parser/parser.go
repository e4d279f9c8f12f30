package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

var (
	ErrEmptyDocument = errors.New("document is empty")
	ErrNotPDF        = errors.New("document is not a PDF")
	ErrNoText        = errors.New("no text could be extracted from the document")
	ErrMalformed     = errors.New("document could not be read")
)

var pdfMagic = []byte("%PDF-")

// headerWindow is how far into the data the header may start
const headerWindow = 1024

// ParsePDFFile reads the file at filePath and extracts its pages
func ParsePDFFile(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParsePDF(data)
}

// ParsePDF extracts the plain text of every page, in page order. Blank pages
// are kept so page numbers stay aligned with the document.
func ParsePDF(data []byte) ([]models.Page, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	// readers accept junk before the header as long as it is near the start;
	// xref offsets count from the header
	off := bytes.Index(data[:min(len(data), headerWindow)], pdfMagic)
	if off < 0 {
		return nil, ErrNotPDF
	}
	data = data[off:]

	pages, err := extractPages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	hasText := false
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, ErrNoText
	}

	log.Debug().Int("pages", len(pages)).Int("bytes", len(data)).Msg("Parsed PDF")
	return pages, nil
}

func extractPages(data []byte) (pages []models.Page, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, models.Page{Number: i})
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: pageText})
	}
	return pages, nil
}
