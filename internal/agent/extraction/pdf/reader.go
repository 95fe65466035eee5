// Package pdf holds the two direct-text decoders used before falling back
// to OCR.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// PlainTextExtractor reads the text layer with ledongthuc/pdf.
type PlainTextExtractor struct {
	logger logger.Logger
}

func NewPlainTextExtractor(log logger.Logger) *PlainTextExtractor {
	return &PlainTextExtractor{logger: log}
}

func (p *PlainTextExtractor) Name() string { return "ledongthuc" }

func (p *PlainTextExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	// the decoder panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf decoder panic: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Debug("Page text unavailable", logger.Int("page", i), logger.Error(err))
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// PageCount returns the number of pages, or 0 when the file cannot be read.
func PageCount(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return 0
	}
	return pdfReader.NumPage()
}
