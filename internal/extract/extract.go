// ABOUTME: Extractor turns a PDF into ordered fragments: text, tables, then images
// ABOUTME: Per-image failures become diagnostics; only open and parse failures are fatal
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/metrics"
	"github.com/harper/pdfrag/internal/models"
)

// ErrFatalIngestion wraps failures that prevent reading the file at all
var ErrFatalIngestion = errors.New("fatal ingestion error")

// Split thresholds in runes
const (
	DefaultTextSplit  = 800
	DefaultTableSplit = 1000
)

// OCR recognizes text in a PNG image
type OCR interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// Rasterizer renders pages of a PDF file to PNG
type Rasterizer interface {
	Open(path string) (PageRenderer, error)
}

// PageRenderer renders single pages of an opened file; pages are 1-based
type PageRenderer interface {
	RenderPNG(page int) ([]byte, error)
	Close() error
}

// Options configures an Extractor. OCR and Rasterizer may be nil.
type Options struct {
	OCR          OCR
	Rasterizer   Rasterizer
	ScannedPages bool
	TextSplit    int
	TableSplit   int
	Logger       *log.Logger
}

// Result holds the fragments of one file and what was skipped
type Result struct {
	Pages     int
	Fragments []models.Fragment
	Skipped   []models.Diagnostic
}

// Extractor reads PDFs. It is safe for concurrent use when its OCR is.
type Extractor struct {
	opts Options
	open func(path string) (document, error)
}

// document is an opened PDF
type document interface {
	NumPages() int
	Page(n int) (*page, error)
	Close() error
}

// page is the raw content of one page
type page struct {
	Rows    []Row
	TextErr error
	Images  []pageImage
}

// pageImage is an image XObject whose samples are read on demand
type pageImage struct {
	Name    string
	Spec    ImageSpec
	SpecErr error
	Read    func() ([]byte, error)
}

// New creates an Extractor backed by the PDF reader
func New(opts Options) *Extractor {
	if opts.TextSplit <= 0 {
		opts.TextSplit = DefaultTextSplit
	}
	if opts.TableSplit <= 0 {
		opts.TableSplit = DefaultTableSplit
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Extractor{opts: opts, open: openPDF}
}

// Extract reads every page of the file at path
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	doc, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFatalIngestion, path, err)
	}
	defer func() { _ = doc.Close() }()

	res := &Result{Pages: doc.NumPages()}
	var renderer PageRenderer
	defer func() {
		if renderer != nil {
			_ = renderer.Close()
		}
	}()

	for n := 1; n <= res.Pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pg, err := doc.Page(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %s page %d: %v", ErrFatalIngestion, path, n, err)
		}

		e.extractText(res, path, n, pg)
		e.extractTables(res, n, pg.Rows)
		ocrHit := e.extractImages(ctx, res, path, n, pg.Images)

		if !ocrHit && e.scannedFallback(pg) {
			if renderer == nil {
				renderer, err = e.opts.Rasterizer.Open(path)
				if err != nil {
					e.skip(res, models.Diagnostic{Source: path, Page: n, Kind: models.KindImageText, Reason: "rasterizer: " + err.Error()})
					renderer = nil
					continue
				}
			}
			e.ocrPage(ctx, res, path, n, renderer)
		}
	}

	for _, f := range res.Fragments {
		metrics.FragmentsExtracted.WithLabelValues(string(f.Kind)).Inc()
	}
	e.opts.Logger.Debug("extracted", "path", path, "pages", res.Pages, "fragments", len(res.Fragments), "skipped", len(res.Skipped))
	return res, nil
}

func (e *Extractor) extractText(res *Result, path string, n int, pg *page) {
	if pg.TextErr != nil {
		e.skip(res, models.Diagnostic{Source: path, Page: n, Kind: models.KindText, Reason: pg.TextErr.Error()})
		return
	}

	text := NormalizeText(pg.Rows)
	if text == "" {
		return
	}
	res.Fragments = append(res.Fragments, models.Fragment{
		Content:    text,
		Page:       n,
		Kind:       models.KindText,
		NeedsSplit: utf8.RuneCountInString(text) > e.opts.TextSplit,
	})
}

func (e *Extractor) extractTables(res *Result, n int, rows []Row) {
	for i, t := range DetectTables(rows) {
		text := t.Serialize()
		if strings.TrimSpace(text) == "" {
			continue
		}
		res.Fragments = append(res.Fragments, models.Fragment{
			Content:    text,
			Page:       n,
			Kind:       models.KindTable,
			TableID:    models.NewTableID(n, i+1),
			NeedsSplit: utf8.RuneCountInString(text) > e.opts.TableSplit,
		})
	}
}

// extractImages reports whether any image yielded OCR text
func (e *Extractor) extractImages(ctx context.Context, res *Result, path string, n int, images []pageImage) bool {
	ocrHit := false
	for i, img := range images {
		id := models.NewImageID(n, i+1)
		frags, err := e.processImage(ctx, n, id, img)
		if err != nil {
			e.opts.Logger.Warn("skipping image", "path", path, "page", n, "image", id, "err", err)
			e.skip(res, models.Diagnostic{Source: path, Page: n, Kind: models.KindImage, ID: id, Reason: err.Error()})
			continue
		}
		for _, f := range frags {
			if f.Kind == models.KindImageText {
				ocrHit = true
			}
		}
		res.Fragments = append(res.Fragments, frags...)
	}
	return ocrHit
}

// processImage decodes and OCRs one image. Panics from the PDF reader are
// turned into errors so one bad image cannot stop the file.
func (e *Extractor) processImage(ctx context.Context, n int, id string, img pageImage) (frags []models.Fragment, err error) {
	defer func() {
		if r := recover(); r != nil {
			frags, err = nil, fmt.Errorf("decode panic: %v", r)
		}
	}()

	if img.SpecErr != nil {
		return nil, img.SpecErr
	}
	if err := img.Spec.Check(); err != nil {
		return nil, err
	}

	samples, err := img.Read()
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	pngBytes, err := DecodeImage(img.Spec, samples)
	if err != nil {
		return nil, err
	}

	if img.Spec.NeedsOCR() && e.opts.OCR != nil {
		text, err := e.opts.OCR.Recognize(ctx, pngBytes)
		if err != nil {
			return nil, fmt.Errorf("ocr: %w", err)
		}
		if text = strings.TrimSpace(text); text != "" {
			frags = append(frags, e.ocrFragment(n, id, text))
		}
	}

	frags = append(frags, models.Fragment{
		Content:  models.ImagePlaceholder(n),
		Page:     n,
		Kind:     models.KindImage,
		ImageID:  id,
		RawBytes: pngBytes,
	})
	return frags, nil
}

func (e *Extractor) scannedFallback(pg *page) bool {
	if !e.opts.ScannedPages || e.opts.OCR == nil || e.opts.Rasterizer == nil || pg.TextErr != nil {
		return false
	}
	for _, row := range pg.Rows {
		if !row.Blank() {
			return false
		}
	}
	return true
}

func (e *Extractor) ocrPage(ctx context.Context, res *Result, path string, n int, r PageRenderer) {
	id := fmt.Sprintf("page_%d", n)
	pngBytes, err := r.RenderPNG(n)
	if err == nil {
		var text string
		text, err = e.opts.OCR.Recognize(ctx, pngBytes)
		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				res.Fragments = append(res.Fragments, e.ocrFragment(n, id, text))
			}
			return
		}
	}
	e.opts.Logger.Warn("scanned page OCR failed", "path", path, "page", n, "err", err)
	e.skip(res, models.Diagnostic{Source: path, Page: n, Kind: models.KindImageText, ID: id, Reason: err.Error()})
}

func (e *Extractor) ocrFragment(n int, id, text string) models.Fragment {
	content := "[Image OCR Text]: " + text
	return models.Fragment{
		Content:    content,
		Page:       n,
		Kind:       models.KindImageText,
		ImageID:    id,
		NeedsSplit: utf8.RuneCountInString(content) > e.opts.TextSplit,
	}
}

func (e *Extractor) skip(res *Result, d models.Diagnostic) {
	res.Skipped = append(res.Skipped, d)
	metrics.FragmentsSkipped.WithLabelValues(string(d.Kind)).Inc()
}
