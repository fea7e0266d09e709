// ABOUTME: Caching decorator for embedders keyed by model name and text hash
// ABOUTME: Cache failures degrade to a miss so ingestion never depends on the cache
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/metrics"
)

// Cache stores vectors by key
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Set(ctx context.Context, key string, vec []float64) error
}

// Cached wraps an Embedder with a Cache
type Cached struct {
	next   Embedder
	cache  Cache
	logger *log.Logger
}

// NewCached decorates next with cache
func NewCached(next Embedder, cache Cache, logger *log.Logger) *Cached {
	return &Cached{next: next, cache: cache, logger: logger}
}

func (c *Cached) Name() string   { return c.next.Name() }
func (c *Cached) Dimension() int { return c.next.Dimension() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	key := CacheKey(c.next.Name(), text)

	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.EmbeddingCache.WithLabelValues("error").Inc()
		c.logger.Warn("embedding cache read failed", "error", err)
	case ok:
		metrics.EmbeddingCache.WithLabelValues("hit").Inc()
		return vec, nil
	default:
		metrics.EmbeddingCache.WithLabelValues("miss").Inc()
	}

	vec, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, vec); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// CacheKey builds the cache key for text embedded by the named model
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}
