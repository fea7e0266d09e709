// ABOUTME: Store is the vector store capability shared by every backend
// ABOUTME: Also holds cosine scoring and ranking used by the brute-force backends
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/harper/pdfrag/internal/models"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the store's dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("vector store is closed")
)

// Record pairs a document with its embedding
type Record struct {
	Document models.Document `json:"document"`
	Vector   []float64       `json:"vector"`
}

// Store persists documents with their vectors and supports similarity search
type Store interface {
	// Upsert inserts records, replacing any with the same document id
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to k documents ranked by descending similarity
	Query(ctx context.Context, vector []float64, k int) ([]models.SearchResult, error)
	// DeleteSource removes every document of a source and reports how many went
	DeleteSource(ctx context.Context, sourceID string) (int, error)
	// ReplaceSource swaps a source's documents for records and reports how
	// many old ones went. On error the previous documents are still there.
	ReplaceSource(ctx context.Context, sourceID string, records []Record) (int, error)
	Sources(ctx context.Context) ([]models.SourceInfo, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	// Location identifies where the store lives (path, collection or db name)
	Location() string
	Close() error
}

// CosineSimilarity calculates cosine similarity between two vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every record against query and keeps the best k. Ties are
// broken by document id so results are stable across backends.
func Rank(query []float64, records []Record, k int) ([]models.SearchResult, error) {
	if k <= 0 || len(records) == 0 {
		return nil, nil
	}

	results := make([]models.SearchResult, 0, len(records))
	for _, r := range records {
		if len(r.Vector) != len(query) {
			return nil, ErrDimensionMismatch
		}
		results = append(results, models.SearchResult{
			Document: r.Document,
			Score:    CosineSimilarity(query, r.Vector),
		})
	}

	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SortResults orders by descending score, then by document id
func SortResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}

// Summarize groups documents by source id
func Summarize(docs []models.Document) []models.SourceInfo {
	bySource := make(map[string]*models.SourceInfo)
	for _, d := range docs {
		id := d.SourceID()
		info, ok := bySource[id]
		if !ok {
			info = &models.SourceInfo{SourceID: id, Source: d.Source()}
			bySource[id] = info
		}
		info.Documents++
	}

	out := make([]models.SourceInfo, 0, len(bySource))
	for _, info := range bySource {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// CheckDimensions verifies all records share one vector length and returns it
func CheckDimensions(records []Record) (int, error) {
	dim := 0
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return 0, ErrDimensionMismatch
		}
	}
	return dim, nil
}
