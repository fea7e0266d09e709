// ABOUTME: Tests that App builds each collaborator once and releases them on Close
// ABOUTME: Runs fully offline with the hashing embedder and the in-memory store
package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/harper/pdfrag/internal/answer"
	"github.com/harper/pdfrag/internal/config"
	"github.com/harper/pdfrag/internal/llm"
	"github.com/harper/pdfrag/internal/logging"
	"github.com/harper/pdfrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{ calls int }

func (g *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	return "stub answer", nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = config.StoreMemory
	cfg.Store.Path = "default"
	cfg.Embedding.Provider = config.EmbedderHashing
	cfg.OCR.Enabled = false
	return cfg
}

func TestEmbedderBuiltOnce(t *testing.T) {
	a := New(testConfig(t), logging.Discard())
	defer a.Close()

	first, err := a.Embedder()
	require.NoError(t, err)
	second, err := a.Embedder()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "hashing-384", first.Name())
}

func TestOpenStoreMemoizedPerLocation(t *testing.T) {
	a := New(testConfig(t), logging.Discard())
	ctx := context.Background()

	s1, err := a.OpenStore(ctx, "one")
	require.NoError(t, err)
	again, err := a.OpenStore(ctx, "one")
	require.NoError(t, err)
	s2, err := a.OpenStore(ctx, "two")
	require.NoError(t, err)

	assert.Same(t, s1, again)
	assert.NotSame(t, s1, s2)

	require.NoError(t, a.Close())
	_, err = s1.Count(ctx)
	assert.ErrorIs(t, err, vectorstore.ErrClosed)

	_, err = a.OpenStore(ctx, "three")
	assert.ErrorIs(t, err, vectorstore.ErrClosed)
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestSQLiteBackendUsesLocationPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.StoreSQLite
	cfg.Store.Path = filepath.Join(cfg.DataDir, "index.db")
	a := New(cfg, logging.Discard())
	defer a.Close()

	s, err := a.Store(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.Store.Path, s.Location())
}

func TestGeneratorRequiresKey(t *testing.T) {
	a := New(testConfig(t), logging.Discard())
	defer a.Close()

	_, err := a.Generator()
	assert.ErrorIs(t, err, llm.ErrNoAPIKey)

	_, err = a.Answerer()
	assert.ErrorIs(t, err, llm.ErrNoAPIKey, "failure is memoized for dependents")
}

func TestAnswerOverEmptyIndex(t *testing.T) {
	a := New(testConfig(t), logging.Discard())
	defer a.Close()
	gen := &stubGenerator{}
	a.newGenerator = func(*config.LLMConfig) (answer.Generator, error) { return gen, nil }

	ctx := context.Background()
	handle, err := a.Handle(ctx)
	require.NoError(t, err)
	ans, err := a.Answerer()
	require.NoError(t, err)

	res, err := ans.Ask(ctx, "anything?", handle)
	require.NoError(t, err)
	assert.True(t, res.EmptyContext)
	assert.Equal(t, "stub answer", res.Answer)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 5, ans.K())
}

func TestPipelineScopesFailuresPerFile(t *testing.T) {
	a := New(testConfig(t), logging.Discard())
	defer a.Close()
	ctx := context.Background()

	p1, err := a.Pipeline(ctx)
	require.NoError(t, err)
	p2, err := a.Pipeline(ctx)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	reports, handle, err := p1.IngestPaths(ctx, []string{filepath.Join(t.TempDir(), "missing.pdf")})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].OK())
	require.NotNil(t, handle)

	n, err := handle.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "cassandra"
	a := New(cfg, logging.Discard())
	defer a.Close()

	_, err := a.Store(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, vectorstore.ErrClosed))
	assert.Contains(t, err.Error(), "cassandra")
}
