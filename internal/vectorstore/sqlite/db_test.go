// ABOUTME: Tests for SQLite database connection and schema initialization
// ABOUTME: Verifies database creation, schema, and reopening persisted data
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
	"github.com/harper/pdfrag/internal/vectorstore/storetest"
)

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if db.Conn() == nil {
		t.Error("Conn() should not be nil")
	}

	if db.Path() != ":memory:" {
		t.Errorf("Path() = %v, want :memory:", db.Path())
	}
}

func TestSchemaInitialization(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, table := range []string{"documents", "index_meta"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s does not exist: %v", table, err)
		}
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "index.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if !Exists(dbPath) {
		t.Error("Exists() = false after Open")
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "index.db")

	s, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	err = s.Upsert(ctx, []vectorstore.Record{
		storetest.Record("d1", "src", models.KindTable, "A | B", 0.5, 0.5),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = s.Close() }()

	results, err := s.Query(ctx, []float64{0.5, 0.5}, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Document.Metadata[models.MetaTableID] != "table_1_1" {
		t.Errorf("table id lost on reopen: %v", results[0].Document.Metadata)
	}

	// a different dimension is rejected after reopen
	err = s.Upsert(ctx, []vectorstore.Record{storetest.Record("d2", "src", models.KindText, "x", 1, 0, 0)})
	if err != vectorstore.ErrDimensionMismatch {
		t.Errorf("Upsert() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float64{0, -1.5, 3.25, 1e-9}
	out := blobToVector(vectorToBlob(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
