// ABOUTME: Vector store persisted in charm KV so an index follows the user across machines
// ABOUTME: Each record is one JSON value under doc:<id>; search is brute-force cosine
package charmkv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
)

// Key prefixes for stored entities
const (
	DocPrefix    = "doc:"
	MetaPrefix   = "meta:"
	dimensionKey = MetaPrefix + "dimension"
)

var errClosed = vectorstore.ErrClosed

// DocKey generates the key for a document record
func DocKey(id string) string {
	return DocPrefix + id
}

// Store implements vectorstore.Store on a charm client
type Store struct {
	client *Client
}

// NewStore wraps an open client
func NewStore(c *Client) *Store {
	return &Store{client: c}
}

// OpenStore opens the charm database described by cfg
func OpenStore(cfg *Config) (*Store, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(c), nil
}

// Client exposes the underlying client for sync and account commands
func (s *Store) Client() *Client {
	return s.client
}

func (s *Store) Upsert(_ context.Context, records []vectorstore.Record) error {
	dim, err := vectorstore.CheckDimensions(records)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	stored, err := s.dimension()
	if err != nil {
		return err
	}
	if stored != 0 && stored != dim {
		return vectorstore.ErrDimensionMismatch
	}

	pairs := make(map[string][]byte, len(records)+1)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", r.Document.ID, err)
		}
		pairs[DocKey(r.Document.ID)] = data
	}
	if stored == 0 {
		pairs[dimensionKey] = []byte(strconv.Itoa(dim))
	}
	return s.client.setMany(pairs)
}

func (s *Store) Query(_ context.Context, vector []float64, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	records, _, err := s.all()
	if err != nil {
		return nil, err
	}
	return vectorstore.Rank(vector, records, k)
}

func (s *Store) DeleteSource(_ context.Context, sourceID string) (int, error) {
	records, keys, err := s.all()
	if err != nil {
		return 0, err
	}

	var doomed []string
	for i, r := range records {
		if r.Document.SourceID() == sourceID {
			doomed = append(doomed, keys[i])
		}
	}
	if err := s.client.deleteMany(doomed); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

// ReplaceSource writes the new records before deleting the old ones, so a
// failed write leaves the source as it was.
func (s *Store) ReplaceSource(_ context.Context, sourceID string, records []vectorstore.Record) (int, error) {
	dim, err := vectorstore.CheckDimensions(records)
	if err != nil {
		return 0, err
	}

	existing, keys, err := s.all()
	if err != nil {
		return 0, err
	}

	var old []string
	others := 0
	for i, r := range existing {
		if r.Document.SourceID() == sourceID {
			old = append(old, keys[i])
			continue
		}
		if len(records) > 0 && len(r.Vector) != dim {
			return 0, vectorstore.ErrDimensionMismatch
		}
		others++
	}

	fresh := make(map[string]bool, len(records))
	if len(records) > 0 {
		pairs := make(map[string][]byte, len(records)+1)
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal record %s: %w", r.Document.ID, err)
			}
			pairs[DocKey(r.Document.ID)] = data
			fresh[DocKey(r.Document.ID)] = true
		}
		pairs[dimensionKey] = []byte(strconv.Itoa(dim))
		if err := s.client.setMany(pairs); err != nil {
			return 0, err
		}
	}

	var doomed []string
	for _, key := range old {
		if !fresh[key] {
			doomed = append(doomed, key)
		}
	}
	if len(records) == 0 && others == 0 {
		doomed = append(doomed, dimensionKey)
	}
	if err := s.client.deleteMany(doomed); err != nil {
		return 0, err
	}
	return len(old), nil
}

func (s *Store) Sources(_ context.Context) ([]models.SourceInfo, error) {
	records, _, err := s.all()
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, len(records))
	for i, r := range records {
		docs[i] = r.Document
	}
	return vectorstore.Summarize(docs), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	keys, err := s.client.listKeys(DocPrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *Store) Clear(_ context.Context) error {
	keys, err := s.client.listKeys(DocPrefix)
	if err != nil {
		return err
	}
	return s.client.deleteMany(append(keys, dimensionKey))
}

func (s *Store) Location() string { return "charm:" + s.client.Name() }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) dimension() (int, error) {
	data, err := s.client.get(dimensionKey)
	if err != nil || len(data) == 0 {
		// a missing key is not an error worth surfacing here
		return 0, nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("corrupt dimension %q: %w", data, err)
	}
	return n, nil
}

// all loads every record with its key, ordered by key
func (s *Store) all() ([]vectorstore.Record, []string, error) {
	keys, err := s.client.listKeys(DocPrefix)
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(keys)

	records := make([]vectorstore.Record, 0, len(keys))
	kept := make([]string, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.get(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		var r vectorstore.Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, nil, fmt.Errorf("corrupt record %s: %w", key, err)
		}
		records = append(records, r)
		kept = append(kept, key)
	}
	return records, kept, nil
}
