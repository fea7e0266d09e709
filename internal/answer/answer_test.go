// ABOUTME: Tests retrieval, prompt assembly and the single generate call
// ABOUTME: Includes the empty-store and table-retrieval scenarios
package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harper/pdfrag/internal/embedding"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/logging"
	"github.com/harper/pdfrag/internal/models"
	"github.com/harper/pdfrag/internal/vectorstore"
	"github.com/harper/pdfrag/internal/vectorstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type fixedRetriever struct {
	results []models.SearchResult
	err     error
	k       int
}

func (r *fixedRetriever) Search(_ context.Context, _ string, k int) ([]models.SearchResult, error) {
	r.k = k
	return r.results, r.err
}

func result(content string, score float64) models.SearchResult {
	return models.SearchResult{Document: models.Document{ID: content, Content: content}, Score: score}
}

func TestAskJoinsContextInRankOrder(t *testing.T) {
	gen := &fakeGenerator{reply: "  Net revenue is 60.\n"}
	r := &fixedRetriever{results: []models.SearchResult{result("first", 0.9), result("second", 0.5)}}
	a := New(gen, 0, logging.Discard())

	res, err := a.Ask(context.Background(), " What is the net revenue? ", r)
	require.NoError(t, err)

	assert.Equal(t, DefaultK, r.k)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "  Net revenue is 60.\n", res.Answer, "answer is returned verbatim")
	assert.False(t, res.EmptyContext)
	assert.Contains(t, gen.prompts[0], "Context: first\n\nsecond\nQuestion: What is the net revenue?\n")
	assert.True(t, strings.HasPrefix(gen.prompts[0], "[INST]"))
	assert.True(t, strings.HasSuffix(gen.prompts[0], "[/INST]"))
	assert.Equal(t, gen.prompts[0], res.Prompt)
}

func TestAnswerEmptyContextStillGenerates(t *testing.T) {
	gen := &fakeGenerator{reply: "The provided context is insufficient to answer."}
	a := New(gen, 5, logging.Discard())

	h, err := index.LoadExisting(context.Background(), ":memory:", func(context.Context, string) (vectorstore.Store, error) {
		return memory.New(), nil
	}, embedding.NewHashing(0))
	require.NoError(t, err)

	out, err := a.Answer(context.Background(), "What is the net revenue?", h)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Context: \nQuestion:")
}

func TestAskRetrievesTableForRevenueQuestion(t *testing.T) {
	ctx := context.Background()
	ix := index.New(embedding.NewHashing(0), memory.New(), logging.Discard())
	h, _, err := ix.Build(ctx, []models.Fragment{
		{Content: "Board members met in March to approve the annual plan", Page: 1, Kind: models.KindText},
		{Content: "Item | Amt\nRevenue | 100\nExpenses | 40", Page: 1, Kind: models.KindTable, TableID: "table_1_1"},
		{Content: "[Image on page 1]", Page: 1, Kind: models.KindImage, ImageID: "image_1_1"},
	}, index.Source{ID: "src", Path: "report.pdf"})
	require.NoError(t, err)

	gen := &fakeGenerator{reply: "100 - 40 = 60"}
	res, err := New(gen, 5, logging.Discard()).Ask(ctx, "What is the net revenue?", h)
	require.NoError(t, err)

	var found bool
	for _, s := range res.Sources {
		if s.Document.Metadata[models.MetaTableID] == "table_1_1" {
			found = true
		}
	}
	assert.True(t, found, "table fragment should be among the retrieved sources")
	assert.Contains(t, res.Prompt, "Revenue | 100")
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	r := &fixedRetriever{}
	_, err := New(gen, 5, logging.Discard()).Ask(context.Background(), "   ", r)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, gen.prompts)
	assert.Zero(t, r.k)
}

func TestAskSurfacesGenerationError(t *testing.T) {
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	_, err := New(gen, 5, logging.Discard()).Ask(context.Background(), "q", &fixedRetriever{})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAskSurfacesRetrievalError(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := New(gen, 5, logging.Discard()).Ask(context.Background(), "q", &fixedRetriever{err: errors.New("store closed")})
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.Empty(t, gen.prompts)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ctx <b>&", "why?")
	assert.Contains(t, p, "Context: ctx <b>&\n")
	assert.Contains(t, p, "If data is insufficient, explicitly say so")
	assert.Contains(t, p, "Perform basic arithmetic as needed.")
}

func TestWithKOverridesRetrievalDepth(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	r := &fixedRetriever{}
	a := New(gen, 0, logging.Discard())

	_, err := a.WithK(2).Ask(context.Background(), "q", r)
	require.NoError(t, err)
	assert.Equal(t, 2, r.k)
	assert.Equal(t, DefaultK, a.K(), "original is unchanged")
	assert.Same(t, a, a.WithK(0))
}
