// ABOUTME: Indexer embeds fragments into a vector store and hands back a search handle
// ABOUTME: Re-indexing a source replaces its previous documents in the combined store
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harper/pdfrag/internal/embedding"
	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
)

// ErrStoreUnavailable is returned when a persisted store cannot be opened
var ErrStoreUnavailable = errors.New("vector store unavailable")

// Opener opens the store at location without modifying it
type Opener func(ctx context.Context, location string) (vectorstore.Store, error)

// Source identifies the file a batch of fragments came from
type Source struct {
	ID   string
	Path string
}

// BuildReport summarizes one Build call
type BuildReport struct {
	SourceID  string              `json:"source_id"`
	Documents int                 `json:"documents"`
	Replaced  int                 `json:"replaced"`
	Skipped   []models.Diagnostic `json:"skipped,omitempty"`
}

// Indexer writes documents into one store
type Indexer struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	logger   *log.Logger
	newID    func() string
}

// New creates an Indexer
func New(embedder embedding.Embedder, store vectorstore.Store, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.Default()
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Handle returns a search handle over the indexer's store
func (ix *Indexer) Handle() *Handle {
	return NewHandle(ix.store, ix.embedder)
}

// Build embeds every fragment with non-blank content and stores it under
// src. Fragments that cannot be embedded are reported, not fatal.
func (ix *Indexer) Build(ctx context.Context, fragments []models.Fragment, src Source) (*Handle, *BuildReport, error) {
	report := &BuildReport{SourceID: src.ID}
	records := make([]vectorstore.Record, 0, len(fragments))

	for _, f := range fragments {
		if strings.TrimSpace(f.Content) == "" {
			report.Skipped = append(report.Skipped, diagnostic(src, f, "blank content"))
			continue
		}

		vec, err := ix.embedder.Embed(ctx, f.Content)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			ix.logger.Warn("embedding failed", "source", src.Path, "page", f.Page, "kind", f.Kind, "err", err)
			report.Skipped = append(report.Skipped, diagnostic(src, f, "embedding: "+err.Error()))
			continue
		}

		records = append(records, vectorstore.Record{
			Document: models.NewDocument(ix.newID(), f, src.Path, src.ID),
			Vector:   vec,
		})
	}

	if len(records) > 0 {
		removed, err := ix.store.ReplaceSource(ctx, src.ID, records)
		if err != nil {
			if errors.Is(err, vectorstore.ErrDimensionMismatch) {
				return nil, nil, fmt.Errorf("store %s holds vectors from another embedding model, reset it first: %w", ix.store.Location(), err)
			}
			return nil, nil, fmt.Errorf("failed to store documents: %w", err)
		}
		report.Replaced = removed
	}
	report.Documents = len(records)

	ix.logger.Info("indexed", "source", src.Path, "documents", report.Documents, "replaced", report.Replaced, "skipped", len(report.Skipped))
	return ix.Handle(), report, nil
}

// LoadExisting opens a persisted store for querying without embedding anything
func LoadExisting(ctx context.Context, location string, open Opener, embedder embedding.Embedder) (*Handle, error) {
	store, err := open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, location, err)
	}
	return NewHandle(store, embedder), nil
}

// SourceID hashes the content so the same bytes always map to the same id
func SourceID(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SourceIDFile hashes the file at path
func SourceIDFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return SourceID(f)
}

func diagnostic(src Source, f models.Fragment, reason string) models.Diagnostic {
	return models.Diagnostic{
		Source: src.Path,
		Page:   f.Page,
		Kind:   f.Kind,
		ID:     f.ID(),
		Reason: reason,
	}
}
