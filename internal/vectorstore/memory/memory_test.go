// ABOUTME: Runs the store conformance suite against the in-memory backend
// ABOUTME: Also checks that a closed store rejects writes
package memory

import (
	"context"
	"testing"

	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
	"github.com/harper/pdfrag/internal/vectorstore/storetest"
	"github.com/stretchr/testify/assert"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) vectorstore.Store { return New() })
}

func TestClosedStore(t *testing.T) {
	s := New()
	_ = s.Close()

	err := s.Upsert(context.Background(), []vectorstore.Record{storetest.Record("x", "src", models.KindText, "x", 1)})
	assert.ErrorIs(t, err, vectorstore.ErrClosed)
	assert.Equal(t, ":memory:", s.Location())
}
