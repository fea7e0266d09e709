// ABOUTME: In-memory vector store using brute-force cosine similarity
// ABOUTME: Lives for the process only; used for sessions and tests
package memory

import (
	"context"
	"sync"

	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
)

// Store keeps records in insertion order behind an RWMutex
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
	index     map[string]int
	closed    bool
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{index: make(map[string]int)}
}

func (s *Store) Upsert(_ context.Context, records []vectorstore.Record) error {
	dim, err := vectorstore.CheckDimensions(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrClosed
	}
	if len(records) == 0 {
		return nil
	}
	if s.dimension != 0 && dim != s.dimension {
		return vectorstore.ErrDimensionMismatch
	}
	s.dimension = dim

	for _, r := range records {
		if i, ok := s.index[r.Document.ID]; ok {
			s.records[i] = r
			continue
		}
		s.index[r.Document.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	return nil
}

func (s *Store) Query(_ context.Context, vector []float64, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, vectorstore.ErrClosed
	}
	return vectorstore.Rank(vector, s.records, k)
}

func (s *Store) DeleteSource(_ context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	kept, removed := s.without(sourceID)
	s.records = kept
	s.reindex()
	return removed, nil
}

func (s *Store) ReplaceSource(_ context.Context, sourceID string, records []vectorstore.Record) (int, error) {
	dim, err := vectorstore.CheckDimensions(records)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	kept, removed := s.without(sourceID)
	if len(kept) > 0 && len(records) > 0 && len(kept[0].Vector) != dim {
		return 0, vectorstore.ErrDimensionMismatch
	}

	s.records = kept
	s.reindex()
	for _, r := range records {
		if i, ok := s.index[r.Document.ID]; ok {
			s.records[i] = r
			continue
		}
		s.index[r.Document.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	if len(s.records) > 0 {
		s.dimension = len(s.records[0].Vector)
	}
	return removed, nil
}

func (s *Store) Sources(_ context.Context) ([]models.SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, vectorstore.ErrClosed
	}

	docs := make([]models.Document, len(s.records))
	for i, r := range s.records {
		docs[i] = r.Document
	}
	return vectorstore.Summarize(docs), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}
	return len(s.records), nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrClosed
	}
	s.records = nil
	s.dimension = 0
	s.index = make(map[string]int)
	return nil
}

func (s *Store) Location() string { return ":memory:" }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// without returns a fresh slice of the records outside sourceID
func (s *Store) without(sourceID string) ([]vectorstore.Record, int) {
	kept := make([]vectorstore.Record, 0, len(s.records))
	removed := 0
	for _, r := range s.records {
		if r.Document.SourceID() == sourceID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	return kept, removed
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.Document.ID] = i
	}
	if len(s.records) == 0 {
		s.dimension = 0
	}
}
