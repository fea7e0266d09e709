// ABOUTME: Handle is a retrieval view over one vector store
// ABOUTME: Embeds a question and returns the closest documents
package index

import (
	"context"
	"fmt"

	"github.com/harper/pdfrag/internal/embedding"
	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
)

// Handle answers similarity queries against a store
type Handle struct {
	store    vectorstore.Store
	embedder embedding.Embedder
}

// NewHandle wraps store for querying with embedder
func NewHandle(store vectorstore.Store, embedder embedding.Embedder) *Handle {
	return &Handle{store: store, embedder: embedder}
}

// Search returns up to k documents ranked by similarity to question. An
// empty store returns no results without calling the embedder.
func (h *Handle) Search(ctx context.Context, question string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	n, err := h.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	vec, err := h.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	results, err := h.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query store: %w", err)
	}
	return results, nil
}

// Count is the number of stored documents
func (h *Handle) Count(ctx context.Context) (int, error) {
	return h.store.Count(ctx)
}

// Store exposes the underlying store
func (h *Handle) Store() vectorstore.Store {
	return h.store
}
