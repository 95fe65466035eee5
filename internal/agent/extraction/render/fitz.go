// Package render rasterises PDF pages with MuPDF.
package render

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/feichai0017/document-intelligence/internal/agent/extraction"
)

// FitzRenderer opens documents with go-fitz.
type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// Open keeps data referenced until the returned source is closed.
func (r *FitzRenderer) Open(data []byte) (extraction.PageSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document for rendering: %w", err)
	}
	return &FitzDocument{doc: doc}, nil
}

// FitzDocument is an opened document. go-fitz serialises calls on one
// document internally, so Render is safe from several goroutines.
type FitzDocument struct {
	doc *fitz.Document
}

func (d *FitzDocument) NumPages() int {
	return d.doc.NumPage()
}

// Render draws the zero-based page at dpi.
func (d *FitzDocument) Render(page int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page+1, err)
	}
	return img, nil
}

func (d *FitzDocument) Close() error {
	return d.doc.Close()
}
