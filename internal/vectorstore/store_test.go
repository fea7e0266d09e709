// ABOUTME: Tests for cosine scoring, ranking and source summaries
// ABOUTME: Shared helpers every brute-force backend relies on
package vectorstore

import (
	"testing"

	"github.com/harper/pdfrag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, source string, v ...float64) Record {
	return Record{
		Document: models.Document{ID: id, Content: id, Metadata: map[string]string{
			models.MetaSourceID: source,
			models.MetaSource:   source + ".pdf",
		}},
		Vector: v,
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0}, []float64{1, 0}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1}, []float64{1, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestRank(t *testing.T) {
	records := []Record{
		rec("b", "s1", 0, 1),
		rec("a", "s1", 1, 0),
		rec("c", "s2", 1, 1),
		rec("d", "s2", 0, 1),
	}

	results, err := Rank([]float64{1, 0}, records, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "c", results[1].Document.ID)
	// b and d tie at zero, id breaks the tie
	assert.Equal(t, "b", results[2].Document.ID)

	none, err := Rank([]float64{1, 0}, records, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Rank([]float64{1, 0, 0}, records, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSummarize(t *testing.T) {
	docs := []models.Document{rec("a", "s1").Document, rec("b", "s2").Document, rec("c", "s1").Document}

	infos := Summarize(docs)
	require.Len(t, infos, 2)
	assert.Equal(t, models.SourceInfo{SourceID: "s1", Source: "s1.pdf", Documents: 2}, infos[0])
	assert.Equal(t, models.SourceInfo{SourceID: "s2", Source: "s2.pdf", Documents: 1}, infos[1])
}

func TestCheckDimensions(t *testing.T) {
	dim, err := CheckDimensions([]Record{rec("a", "s", 1, 2), rec("b", "s", 3, 4)})
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = CheckDimensions([]Record{rec("a", "s", 1, 2), rec("b", "s", 3)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
