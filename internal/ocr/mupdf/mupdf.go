// ABOUTME: Page rasterizer backed by MuPDF through go-fitz
// ABOUTME: Renders whole pages to PNG so scanned pages can be OCR'd
package mupdf

import (
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/harper/pdfrag/internal/extract"
)

// DefaultDPI balances OCR accuracy against render time
const DefaultDPI = 200

// Rasterizer opens PDFs with MuPDF
type Rasterizer struct {
	DPI float64
}

// New creates a rasterizer; dpi <= 0 selects DefaultDPI
func New(dpi float64) *Rasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Rasterizer{DPI: dpi}
}

// Open loads the file for rendering
func (r *Rasterizer) Open(path string) (extract.PageRenderer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &renderer{doc: doc, dpi: r.DPI}, nil
}

type renderer struct {
	mu  sync.Mutex
	doc *fitz.Document
	dpi float64
}

// RenderPNG renders the 1-based page number
func (r *renderer) RenderPNG(page int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if page < 1 || page > r.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range 1..%d", page, r.doc.NumPage())
	}
	return r.doc.ImagePNG(page-1, r.dpi)
}

func (r *renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Close()
}
