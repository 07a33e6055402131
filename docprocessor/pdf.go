package docprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoPDFContent is returned when a PDF yields no text on any page.
var ErrNoPDFContent = errors.New("no text content found in PDF")

// extractPDF joins the plain text of every page with a newline. Pages that
// fail are skipped; the first page error is returned alongside whatever text
// the other pages produced. The parser panics on some malformed files, which
// is reported as an error.
func extractPDF(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	pages = r.NumPage()
	parts := make([]string, 0, pages)
	var firstErr error

	// Pages are 1-indexed in ledongthuc/pdf
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			parts = append(parts, "")
			continue
		}
		pageText, perr := p.GetPlainText(nil)
		if perr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", i, perr)
			}
			parts = append(parts, "")
			continue
		}
		parts = append(parts, pageText)
	}

	text = strings.Join(parts, "\n")
	if firstErr != nil {
		return text, pages, firstErr
	}
	if strings.TrimSpace(text) == "" {
		return "", pages, ErrNoPDFContent
	}
	return text, pages, nil
}
