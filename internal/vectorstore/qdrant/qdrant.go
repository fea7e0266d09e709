// ABOUTME: Vector store backed by a Qdrant collection over its REST API
// ABOUTME: Cosine distance; payload carries the document content and metadata
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
)

// namespace for deriving point ids, which Qdrant requires to be UUIDs
var pointNamespace = uuid.MustParse("6f1d7c52-3f0e-4b8a-9a52-0d4e2b7f9c11")

const scrollPage = 256

// Config locates the collection
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Store is a minimal REST client to one Qdrant collection
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
	closed    bool
}

type payload struct {
	DocID     string            `json:"doc_id"`
	SourceID  string            `json:"source_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

// New creates a store; the collection is created lazily on first write
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a document id to its Qdrant point id
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
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
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}
	return s.writePoints(ctx, records)
}

// ReplaceSource writes the new points, then deletes the source's points that
// are not among them.
func (s *Store) ReplaceSource(ctx context.Context, sourceID string, records []vectorstore.Record) (int, error) {
	dim, err := vectorstore.CheckDimensions(records)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	existing, err := s.loadDimension(ctx)
	if err != nil {
		return 0, err
	}
	old := 0
	if existing != 0 {
		if old, err = s.count(ctx, sourceFilter(sourceID)); err != nil {
			return 0, err
		}
	}

	if len(records) > 0 {
		if err := s.ensureCollection(ctx, dim); err != nil {
			return 0, err
		}
		if err := s.writePoints(ctx, records); err != nil {
			return 0, err
		}
	}
	if old == 0 {
		return 0, nil
	}

	filter := sourceFilter(sourceID)
	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = PointID(r.Document.ID)
		}
		filter["must_not"] = []map[string]any{{"has_id": ids}}
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return old, nil
}

func (s *Store) writePoints(ctx context.Context, records []vectorstore.Record) error {
	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{
			ID:     PointID(r.Document.ID),
			Vector: r.Vector,
			Payload: payload{
				DocID:     r.Document.ID,
				SourceID:  r.Document.SourceID(),
				Content:   r.Document.Content,
				Metadata:  r.Document.Metadata,
				CreatedAt: r.Document.CreatedAt,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Store) Query(ctx context.Context, vector []float64, k int) ([]models.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, vectorstore.ErrClosed
	}
	if k <= 0 {
		return nil, nil
	}

	dim, err := s.loadDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if dim != len(vector) {
		return nil, vectorstore.ErrDimensionMismatch
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, models.SearchResult{Document: r.Payload.document(), Score: r.Score})
	}
	vectorstore.SortResults(results)
	return results, nil
}

func (s *Store) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}

	filter := sourceFilter(sourceID)
	n, err := s.count(ctx, filter)
	if err != nil || n == 0 {
		return 0, err
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Sources(ctx context.Context) ([]models.SourceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, vectorstore.ErrClosed
	}

	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return nil, err
	}

	var (
		docs   []models.Document
		offset any
	)
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload payload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			docs = append(docs, p.Payload.document())
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	return vectorstore.Summarize(docs), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	dim, err := s.loadDimension(ctx)
	if err != nil || dim == 0 {
		return 0, err
	}
	return s.count(ctx, nil)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrClosed
	}

	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Store) Location() string { return s.url + "/collections/" + s.collection }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

var errNotFound = errors.New("qdrant: not found")

func (p payload) document() models.Document {
	return models.Document{
		ID:        p.DocID,
		Content:   p.Content,
		Metadata:  p.Metadata,
		CreatedAt: p.CreatedAt,
	}
}

func sourceFilter(sourceID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "source_id", "match": map[string]any{"value": sourceID}},
		},
	}
}

func (s *Store) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// loadDimension reads the collection vector size, 0 when it does not exist
func (s *Store) loadDimension(ctx context.Context) (int, error) {
	if s.dimension != 0 {
		return s.dimension, nil
	}
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s.dimension = resp.Result.Config.Params.Vectors.Size
	return s.dimension, nil
}

func (s *Store) ensureCollection(ctx context.Context, dim int) error {
	existing, err := s.loadDimension(ctx)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing != dim {
			return vectorstore.ErrDimensionMismatch
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	s.dimension = dim
	return nil
}

func (s *Store) count(ctx context.Context, filter map[string]any) (int, error) {
	req := map[string]any{"exact": true}
	if filter != nil {
		req["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
