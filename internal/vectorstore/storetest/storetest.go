// ABOUTME: Conformance suite run against every vector store backend
// ABOUTME: Checks ranking, upsert and source replacement, deletion, clearing and closing
package storetest

import (
	"context"
	"testing"

	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Record builds a record for source with the given vector
func Record(id, sourceID string, kind models.FragmentKind, content string, v ...float64) vectorstore.Record {
	f := models.Fragment{Content: content, Page: 1, Kind: kind}
	switch kind {
	case models.KindTable:
		f.TableID = models.NewTableID(1, 1)
	case models.KindImage, models.KindImageText:
		f.ImageID = models.NewImageID(1, 1)
	}
	return vectorstore.Record{
		Document: models.NewDocument(id, f, "/data/"+sourceID+".pdf", sourceID),
		Vector:   v,
	}
}

// Run exercises a fresh store from newStore
func Run(t *testing.T, newStore func(t *testing.T) vectorstore.Store) {
	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		results, err := s.Query(ctx, []float64{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("query ranks by similarity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{
			Record("doc-text", "src1", models.KindText, "Revenue: $100", 1, 0, 0),
			Record("doc-table", "src1", models.KindTable, "Item | Amt\nA | 10", 0.9, 0.1, 0),
			Record("doc-image", "src1", models.KindImage, "[Image on page 1]", 0, 0, 1),
		}))

		results, err := s.Query(ctx, []float64{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "doc-text", results[0].Document.ID)
		assert.Equal(t, "doc-table", results[1].Document.ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

		table := results[1].Document
		assert.Equal(t, "Item | Amt\nA | 10", table.Content)
		assert.Equal(t, models.KindTable, table.Kind())
		assert.Equal(t, "table_1_1", table.Metadata[models.MetaTableID])
		assert.Equal(t, 1, table.Page())
		assert.Equal(t, "src1", table.SourceID())

		all, err := s.Query(ctx, []float64{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{Record("d1", "src", models.KindText, "old", 1, 0)}))
		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{Record("d1", "src", models.KindText, "new", 0, 1)}))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		results, err := s.Query(ctx, []float64{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "new", results[0].Document.Content)
	})

	t.Run("delete source and list sources", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{
			Record("a1", "alpha", models.KindText, "a1", 1, 0),
			Record("a2", "alpha", models.KindText, "a2", 1, 1),
			Record("b1", "beta", models.KindText, "b1", 0, 1),
		}))

		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, "alpha", sources[0].SourceID)
		assert.Equal(t, 2, sources[0].Documents)

		removed, err := s.DeleteSource(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		results, err := s.Query(ctx, []float64{1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b1", results[0].Document.ID)
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{Record("x", "src", models.KindText, "x", 1)}))
		require.NoError(t, s.Clear(ctx))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Upsert(ctx, []vectorstore.Record{
			Record("x", "src", models.KindText, "x", 1, 0),
			Record("y", "src", models.KindText, "y", 1),
		})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("replace source", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{
			Record("a1", "alpha", models.KindText, "a1 old", 1, 0),
			Record("a2", "alpha", models.KindText, "a2 old", 1, 1),
			Record("b1", "beta", models.KindText, "b1", 0, 1),
		}))

		removed, err := s.ReplaceSource(ctx, "alpha", []vectorstore.Record{
			Record("a1", "alpha", models.KindText, "a1 new", 1, 0),
			Record("a3", "alpha", models.KindText, "a3", 0.5, 0.5),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		results, err := s.Query(ctx, []float64{1, 0}, 5)
		require.NoError(t, err)
		ids := make(map[string]string)
		for _, r := range results {
			ids[r.Document.ID] = r.Document.Content
		}
		assert.Equal(t, map[string]string{"a1": "a1 new", "a3": "a3", "b1": "b1"}, ids)
	})

	t.Run("failed replace keeps previous documents", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{
			Record("a1", "alpha", models.KindText, "a1", 1, 0),
			Record("b1", "beta", models.KindText, "b1", 0, 1),
		}))

		_, err := s.ReplaceSource(ctx, "alpha", []vectorstore.Record{
			Record("a1", "alpha", models.KindText, "a1 wide", 1, 0, 0),
		})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		results, err := s.Query(ctx, []float64{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a1", results[0].Document.Content)
	})

	t.Run("closed store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Close())

		rec := []vectorstore.Record{Record("x", "src", models.KindText, "x", 1, 0)}
		assert.ErrorIs(t, s.Upsert(ctx, rec), vectorstore.ErrClosed)

		_, err := s.Query(ctx, []float64{1, 0}, 5)
		assert.ErrorIs(t, err, vectorstore.ErrClosed)
		_, err = s.Count(ctx)
		assert.ErrorIs(t, err, vectorstore.ErrClosed)
		_, err = s.Sources(ctx)
		assert.ErrorIs(t, err, vectorstore.ErrClosed)
		_, err = s.DeleteSource(ctx, "src")
		assert.ErrorIs(t, err, vectorstore.ErrClosed)
		_, err = s.ReplaceSource(ctx, "src", rec)
		assert.ErrorIs(t, err, vectorstore.ErrClosed)
		assert.ErrorIs(t, s.Clear(ctx), vectorstore.ErrClosed)
	})
}
