package ingestion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNotPDF is returned for files without a .pdf extension.
var ErrNotPDF = errors.New("not a PDF file")

// ErrNoText is returned when a PDF yields only whitespace.
var ErrNoText = errors.New("no text could be extracted from the PDF")

// PDFError wraps a failure to read a specific PDF.
type PDFError struct {
	Path    string
	Message string
	Cause   error
}

func (e *PDFError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", filepath.Base(e.Path), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", filepath.Base(e.Path), e.Message)
}

func (e *PDFError) Unwrap() error {
	return e.Cause
}

// PDFText returns the cleaned plain text of a PDF and its page count. The page
// count comes from a structural read that also rejects malformed files.
func PDFText(path string) (string, int, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", 0, &PDFError{Path: path, Message: "unsupported file type", Cause: ErrNotPDF}
	}

	pages, err := pageCount(path)
	if err != nil {
		return "", 0, &PDFError{Path: path, Message: "invalid PDF", Cause: err}
	}

	raw, err := plainText(path)
	if err != nil {
		return "", pages, &PDFError{Path: path, Message: "text extraction failed", Cause: err}
	}

	text := CleanText(raw)
	if text == "" {
		return "", pages, &PDFError{Path: path, Message: "empty document", Cause: ErrNoText}
	}
	return text, pages, nil
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(f, conf)
}

// plainText concatenates the text of every page. Pages that fail to decode
// are skipped; an error is returned only if every page fails. The reader
// panics on broken object references, which is reported as an error.
func plainText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	var lastErr error
	failed := 0
	total := r.NumPage()

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		// Font resource names are only unique within a page.
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}

		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			failed++
			lastErr = fmt.Errorf("page %d: %w", i, err)
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	if total > 0 && failed == total {
		return "", lastErr
	}
	return sb.String(), nil
}
