// ABOUTME: Tests for benchmark metrics, scenario loading and the runner
// ABOUTME: Runs built-in scenarios offline with the hashing embedder and a scripted generator

package ragas

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/pdfrag/internal/embedding"
	"github.com/harper/pdfrag/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFaithfulness(t *testing.T) {
	m := NewMetricsCalculator()
	tests := []struct {
		name      string
		response  string
		expected  []string
		forbidden []string
		want      float64
	}{
		{"all expected", "Net revenue was 60 million.", []string{"60"}, []string{"75"}, 1.0},
		{"case insensitive", "THE TERM IS 24 MONTHS", []string{"24 months"}, nil, 1.0},
		{"missing expected", "I don't know.", []string{"60"}, nil, 0.5},
		{"forbidden present", "It was 60, or maybe 75.", []string{"60"}, []string{"75"}, 0.5},
		{"both wrong", "It was 75.", []string{"60"}, []string{"75"}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detail := m.CalculateFaithfulness(tt.response, tt.expected, tt.forbidden)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, detail)
		})
	}
}

func TestCalculateContextRecall(t *testing.T) {
	m := NewMetricsCalculator()

	got, _ := m.CalculateContextRecall(nil, nil)
	assert.Equal(t, 1.0, got)

	got, detail := m.CalculateContextRecall(
		[]string{"Revenue grew to 100.", "Expenses were 40."},
		[]string{"revenue grew", "expenses were 40", "net revenue"},
	)
	assert.InDelta(t, 2.0/3.0, got, 1e-9)
	assert.Contains(t, detail, "net revenue")
}

func TestEvaluateTestStatus(t *testing.T) {
	m := NewMetricsCalculator()
	sc := GetFinancialReport()

	pass := m.EvaluateTest(sc, "Net revenue was 60 million dollars.", []string{"... a net revenue of 60 million dollars."})
	assert.Equal(t, StatusPass, pass.Status)
	assert.Equal(t, 1.0, pass.OverallScore)

	fail := m.EvaluateTest(sc, "Net revenue was 60.", nil)
	assert.Equal(t, StatusFail, fail.Status)
	assert.Equal(t, 0.5, fail.OverallScore)
}

func TestBuiltInScenariosAreValid(t *testing.T) {
	ids := map[string]bool{}
	for _, sc := range GetAllTests() {
		require.NoError(t, sc.Validate())
		assert.False(t, ids[sc.ID], "duplicate id %s", sc.ID)
		ids[sc.ID] = true
		for _, f := range sc.Fragments() {
			assert.NoError(t, f.Validate())
		}
	}
}

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios.yaml"))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.Equal(t, "contract_term", scenarios[0].ID)
	assert.Equal(t, 3, scenarios[0].K)
	require.Len(t, scenarios[0].Passages, 2)
	assert.Equal(t, "table", scenarios[0].Passages[1].Kind)
	assert.Equal(t, []string{"24 months"}, scenarios[0].GroundTruth.ExpectedInResponse)

	assert.Equal(t, filepath.Join("testdata", "reports", "annual.pdf"), scenarios[1].Documents[0])
}

func TestLoadScenariosRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - id: x\n    question: q\n    passages:\n      - kind: chart\n        content: y\n"), 0o600))

	_, err := LoadScenarios(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown passage kind")
}

// echoGenerator answers with the context section of the prompt
type echoGenerator struct{ err error }

func (g echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	start := strings.Index(prompt, "Context:")
	end := strings.Index(prompt, "Question:")
	if start < 0 || end < start {
		return prompt, nil
	}
	return prompt[start:end], nil
}

func newRunner(t *testing.T, gen echoGenerator) *BenchmarkRunner {
	r, err := NewBenchmarkRunner(Options{
		Embedder:  embedding.NewHashing(0),
		Generator: gen,
		K:         2,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	return r
}

func TestRunAllBuiltInScenarios(t *testing.T) {
	r := newRunner(t, echoGenerator{})

	results, err := r.RunAllTests(context.Background(), GetAllTests())
	require.NoError(t, err)
	require.Len(t, results, len(GetAllTests()))
	for _, res := range results {
		assert.Empty(t, res.ErrorMessage, res.TestID)
		assert.Equal(t, 1.0, res.ContextRecallScore, res.TestID)
	}
}

func TestRunRecordsFailures(t *testing.T) {
	r := newRunner(t, echoGenerator{err: errors.New("no model")})

	results, err := r.RunAllTests(context.Background(), []TestScenario{GetTableLookup()})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFail, results[0].Status)
	assert.Contains(t, results[0].ErrorMessage, "generation failed")
}

func TestRunDocumentsWithoutExtractor(t *testing.T) {
	r := newRunner(t, echoGenerator{})
	_, err := r.RunTest(context.Background(), TestScenario{ID: "pdf", Question: "q", Documents: []string{"a.pdf"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extractor")
}

func TestExportResults(t *testing.T) {
	r := newRunner(t, echoGenerator{})
	path := filepath.Join(t.TempDir(), "results.json")

	results := []TestResult{
		{TestID: "a", Status: StatusPass},
		{TestID: "b", Status: StatusFail},
	}
	require.NoError(t, r.ExportResults(results, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s Summary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
}
