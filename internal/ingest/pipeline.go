// ABOUTME: Pipeline runs extract, chunk and index for each file of a batch
// ABOUTME: A fatal error on one file is recorded on its report and the batch continues
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/chunker"
	"github.com/harper/pdfrag/internal/extract"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/metrics"
	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/uploads"
)

// Upload is one file received from a client
type Upload struct {
	Name   string
	Reader io.Reader
}

// FileReport describes what happened to one file
type FileReport struct {
	Name       string              `json:"name"`
	StoredPath string              `json:"stored_path,omitempty"`
	Archived   string              `json:"archived,omitempty"`
	SourceID   string              `json:"source_id,omitempty"`
	Pages      int                 `json:"pages"`
	Fragments  int                 `json:"fragments"`
	Documents  int                 `json:"documents"`
	Replaced   int                 `json:"replaced,omitempty"`
	Skipped    []models.Diagnostic `json:"skipped,omitempty"`
	Err        error               `json:"-"`
	Error      string              `json:"error,omitempty"`
}

// OK reports whether the file was indexed
func (r *FileReport) OK() bool { return r.Err == nil }

func (r *FileReport) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Extractor reads a PDF into fragments
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// Pipeline ingests files into one index. Runs are serialized.
type Pipeline struct {
	extractor Extractor
	splitter  *chunker.Splitter
	indexer   *index.Indexer
	uploads   *uploads.Store
	archiver  uploads.Archiver
	logger    *log.Logger

	mu sync.Mutex
}

// Options wires a Pipeline; Archiver may be nil
type Options struct {
	Extractor Extractor
	Splitter  *chunker.Splitter
	Indexer   *index.Indexer
	Uploads   *uploads.Store
	Archiver  uploads.Archiver
	Logger    *log.Logger
}

// New creates a Pipeline
func New(opts Options) *Pipeline {
	if opts.Splitter == nil {
		opts.Splitter = chunker.NewDefault()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Pipeline{
		extractor: opts.Extractor,
		splitter:  opts.Splitter,
		indexer:   opts.Indexer,
		uploads:   opts.Uploads,
		archiver:  opts.Archiver,
		logger:    opts.Logger,
	}
}

// IngestFiles saves each upload, then ingests it. The returned error is only
// set when ctx ends the batch early.
func (p *Pipeline) IngestFiles(ctx context.Context, files []Upload) ([]FileReport, *index.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reports := make([]FileReport, 0, len(files))
	for _, u := range files {
		if err := ctx.Err(); err != nil {
			return reports, p.indexer.Handle(), err
		}

		report := FileReport{Name: u.Name}
		if p.uploads == nil {
			report.fail(errors.New("uploads are not configured"))
			reports = append(reports, report)
			continue
		}
		path, err := p.uploads.Save(u.Name, u.Reader)
		if err != nil {
			p.logger.Error("failed to save upload", "name", u.Name, "err", err)
			metrics.IngestFiles.WithLabelValues(metrics.StatusError).Inc()
			report.fail(fmt.Errorf("save: %w", err))
			reports = append(reports, report)
			continue
		}
		report.StoredPath = path

		if p.archiver != nil {
			loc, err := p.archiver.Archive(ctx, path)
			if err != nil {
				p.logger.Warn("archive failed", "path", path, "err", err)
			}
			report.Archived = loc
		}

		if err := p.ingest(ctx, path, &report); err != nil {
			reports = append(reports, report)
			return reports, p.indexer.Handle(), err
		}
		reports = append(reports, report)
	}
	return reports, p.indexer.Handle(), nil
}

// IngestPaths ingests files already on disk
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string) ([]FileReport, *index.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reports := make([]FileReport, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return reports, p.indexer.Handle(), err
		}

		report := FileReport{Name: filepath.Base(path), StoredPath: path}
		if err := p.ingest(ctx, path, &report); err != nil {
			reports = append(reports, report)
			return reports, p.indexer.Handle(), err
		}
		reports = append(reports, report)
	}
	return reports, p.indexer.Handle(), nil
}

// ingest processes one stored file. File-level failures land on the
// report; only cancellation is returned.
func (p *Pipeline) ingest(ctx context.Context, path string, report *FileReport) error {
	start := time.Now()
	logger := p.logger.With("file", report.Name)

	err := p.run(ctx, path, report)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.fail(ctxErr)
			return ctxErr
		}
		logger.Error("ingestion failed", "err", err)
		metrics.IngestFiles.WithLabelValues(metrics.StatusError).Inc()
		report.fail(err)
		return nil
	}

	metrics.IngestFiles.WithLabelValues(metrics.StatusOK).Inc()
	for _, d := range report.Skipped {
		logger.Warn("skipped fragment", "diagnostic", d.String())
	}
	logger.Info("ingested", "pages", report.Pages, "documents", report.Documents, "skipped", len(report.Skipped), "duration", time.Since(start))
	return nil
}

func (p *Pipeline) run(ctx context.Context, path string, report *FileReport) error {
	sourceID, err := index.SourceIDFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", extract.ErrFatalIngestion, err)
	}
	report.SourceID = sourceID

	res, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return err
	}
	report.Pages = res.Pages
	report.Skipped = append(report.Skipped, res.Skipped...)

	fragments := p.splitter.ChunkFragments(res.Fragments)
	report.Fragments = len(fragments)

	_, built, err := p.indexer.Build(ctx, fragments, index.Source{ID: sourceID, Path: path})
	if err != nil {
		return err
	}
	report.Documents = built.Documents
	report.Replaced = built.Replaced
	report.Skipped = append(report.Skipped, built.Skipped...)
	return nil
}
