// ABOUTME: Vector store backed by SQLite with brute-force cosine search
// ABOUTME: Vectors are stored as little-endian float64 BLOBs
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
)

const metaDimension = "dimension"

// Store implements vectorstore.Store on a SQLite database
type Store struct {
	db     *DB
	mu     sync.RWMutex
	closed bool
}

// NewStore wraps an open database
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// OpenStore opens or creates the index database at path
func OpenStore(path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// Exists reports whether a database file is present at path
func Exists(path string) bool {
	return fileExists(path)
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

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeRecords(ctx, tx, dim, records); err != nil {
		return err
	}
	return tx.Commit()
}

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

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE source_id = ?", sourceID)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	// An emptied index may take a new dimension.
	var left int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&left); err != nil {
		return 0, err
	}
	if left == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_meta WHERE key = ?", metaDimension); err != nil {
			return 0, err
		}
	}

	if len(records) > 0 {
		if err := writeRecords(ctx, tx, dim, records); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

// writeRecords checks the stored dimension and upserts records inside tx
func writeRecords(ctx context.Context, tx *sql.Tx, dim int, records []vectorstore.Record) error {
	stored, err := dimension(ctx, tx)
	if err != nil {
		return err
	}
	if stored != 0 && stored != dim {
		return vectorstore.ErrDimensionMismatch
	}
	if stored == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			metaDimension, strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("failed to record dimension: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, source_id, source, content, metadata, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			source = excluded.source,
			content = excluded.content,
			metadata = excluded.metadata,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		meta, err := json.Marshal(r.Document.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", r.Document.ID, err)
		}
		created := r.Document.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			r.Document.ID, r.Document.SourceID(), r.Document.Source(),
			r.Document.Content, string(meta), vectorToBlob(r.Vector), created,
		); err != nil {
			return fmt.Errorf("failed to save document %s: %w", r.Document.ID, err)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float64, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, vectorstore.ErrClosed
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, content, metadata, vector, created_at
		FROM documents
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []vectorstore.Record
	for rows.Next() {
		var (
			doc  models.Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &blob, &doc.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for %s: %w", doc.ID, err)
		}
		records = append(records, vectorstore.Record{Document: doc, Vector: blobToVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return vectorstore.Rank(vector, records, k)
}

func (s *Store) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	res, err := s.db.conn.ExecContext(ctx, "DELETE FROM documents WHERE source_id = ?", sourceID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Sources(ctx context.Context) ([]models.SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, vectorstore.ErrClosed
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT source_id, MIN(source), COUNT(*)
		FROM documents
		GROUP BY source_id
		ORDER BY MIN(source)
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.SourceInfo
	for rows.Next() {
		var info models.SourceInfo
		if err := rows.Scan(&info.SourceID, &info.Source, &info.Documents); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, vectorstore.ErrClosed
	}

	var n int
	err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrClosed
	}

	if _, err := s.db.conn.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return err
	}
	_, err := s.db.conn.ExecContext(ctx, "DELETE FROM index_meta WHERE key = ?", metaDimension)
	return err
}

func (s *Store) Location() string { return s.db.Path() }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func dimension(ctx context.Context, tx *sql.Tx) (int, error) {
	var v string
	err := tx.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaDimension).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("corrupt dimension %q: %w", v, err)
	}
	return n, nil
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}
