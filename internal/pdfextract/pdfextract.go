// Package pdfextract extracts page-aware plain text from PDF files using
// ledongthuc/pdf, the same library the teacher framework uses, but
// keeping each page's text separate instead of flattening the document
// into one string — the indexer needs a page number per chunk.
package pdfextract

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/zerrors"
)

// Page is one page's extracted text, 1-based.
type Page struct {
	PageNum int
	Text    string
}

// Extractor extracts page-aware text from a PDF file.
type Extractor interface {
	Pages(path string) ([]Page, error)
}

// PDFExtractor is the default Extractor backed by ledongthuc/pdf.
type PDFExtractor struct {
	log logging.Logger
}

// New returns a PDFExtractor. A nil logger falls back to
// logging.Global.
func New(log logging.Logger) *PDFExtractor {
	return &PDFExtractor{log: logging.OrGlobal(log)}
}

// Pages opens the PDF at path and extracts each page's plain text,
// 1-based. A missing file or an unparseable PDF returns a *zerrors.DataError
// so the indexer can record a per-item skip reason without aborting.
func (e *PDFExtractor) Pages(path string) ([]Page, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, zerrors.NewDataError("pdfextract", fmt.Errorf("open %s: %w", path, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, zerrors.NewDataError("pdfextract", fmt.Errorf("stat %s: %w", path, err))
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, zerrors.NewDataError("pdfextract", fmt.Errorf("parse %s: %w", path, err))
	}

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.log.Warn("page extraction failed", "path", path, "page", i, "error", err)
			continue
		}
		pages = append(pages, Page{PageNum: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, zerrors.NewDataError("pdfextract", fmt.Errorf("no extractable text in %s", path))
	}
	return pages, nil
}
