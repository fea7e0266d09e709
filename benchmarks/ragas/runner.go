// ABOUTME: Test runner for RAGAS benchmarks - executes scenarios and collects results
// ABOUTME: Each scenario gets a fresh in-memory index, is ingested, asked once, then scored

package ragas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/answer"
	"github.com/harper/pdfrag/internal/chunker"
	"github.com/harper/pdfrag/internal/embedding"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/ingest"
	"github.com/harper/pdfrag/internal/vectorstore/memory"
)

// Options wires the runner to the same collaborators the application uses
type Options struct {
	Embedder  embedding.Embedder
	Generator answer.Generator
	// Extractor is only needed for scenarios that list PDF documents
	Extractor ingest.Extractor
	Splitter  *chunker.Splitter
	K         int
	Logger    *log.Logger
	// Out receives progress output when Verbose is set
	Out     io.Writer
	Verbose bool
}

// BenchmarkRunner executes RAGAS benchmark tests
type BenchmarkRunner struct {
	opts    Options
	metrics *MetricsCalculator
}

// Summary counts results by status
type Summary struct {
	Timestamp string       `json:"timestamp"`
	Total     int          `json:"total_tests"`
	Passed    int          `json:"passed"`
	Failed    int          `json:"failed"`
	Results   []TestResult `json:"results"`
}

// NewBenchmarkRunner creates a new benchmark runner
func NewBenchmarkRunner(opts Options) (*BenchmarkRunner, error) {
	if opts.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.Splitter == nil {
		opts.Splitter = chunker.NewDefault()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &BenchmarkRunner{opts: opts, metrics: NewMetricsCalculator()}, nil
}

// RunTest executes a single benchmark test
func (r *BenchmarkRunner) RunTest(ctx context.Context, scenario TestScenario) (TestResult, error) {
	if err := scenario.Validate(); err != nil {
		return TestResult{}, err
	}
	r.printf("\n========================================\n")
	r.printf("RUNNING: %s\n", scenario.Name)
	r.printf("========================================\n")
	r.printf("Description: %s\n\n", scenario.Description)

	store := memory.New()
	defer store.Close()
	ix := index.New(r.opts.Embedder, store, r.opts.Logger.With("scenario", scenario.ID))

	if err := r.index(ctx, ix, scenario); err != nil {
		return TestResult{}, fmt.Errorf("setup failed: %w", err)
	}

	ans := answer.New(r.opts.Generator, r.opts.K, r.opts.Logger).WithK(scenario.K)
	res, err := ans.Ask(ctx, scenario.Question, ix.Handle())
	if err != nil {
		return TestResult{}, fmt.Errorf("ask failed: %w", err)
	}

	retrieved := make([]string, len(res.Sources))
	for i, s := range res.Sources {
		retrieved[i] = s.Document.Content
	}
	r.printf("Question: %s\nAnswer: %s\nRetrieved %d passage(s)\n", scenario.Question, res.Answer, len(retrieved))

	return r.metrics.EvaluateTest(scenario, res.Answer, retrieved), nil
}

func (r *BenchmarkRunner) index(ctx context.Context, ix *index.Indexer, scenario TestScenario) error {
	if len(scenario.Passages) > 0 {
		frags := r.opts.Splitter.ChunkFragments(scenario.Fragments())
		src := index.Source{ID: "scenario:" + scenario.ID, Path: scenario.ID}
		if _, _, err := ix.Build(ctx, frags, src); err != nil {
			return err
		}
	}
	if len(scenario.Documents) == 0 {
		return nil
	}
	if r.opts.Extractor == nil {
		return errors.New("scenario lists documents but no extractor is configured")
	}

	p := ingest.New(ingest.Options{
		Extractor: r.opts.Extractor,
		Splitter:  r.opts.Splitter,
		Indexer:   ix,
		Logger:    r.opts.Logger,
	})
	reports, _, err := p.IngestPaths(ctx, scenario.Documents)
	if err != nil {
		return err
	}
	for _, rep := range reports {
		if !rep.OK() {
			return fmt.Errorf("%s: %w", rep.Name, rep.Err)
		}
	}
	return nil
}

// RunAllTests executes every scenario. A scenario that cannot run is
// recorded as a failure and the rest still run.
func (r *BenchmarkRunner) RunAllTests(ctx context.Context, scenarios []TestScenario) ([]TestResult, error) {
	results := make([]TestResult, 0, len(scenarios))
	for _, scenario := range scenarios {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := r.RunTest(ctx, scenario)
		if err != nil {
			result = TestResult{
				TestID:       scenario.ID,
				TestName:     scenario.Name,
				Status:       StatusFail,
				ErrorMessage: err.Error(),
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// Summarize counts passes and failures
func Summarize(results []TestResult) Summary {
	s := Summary{
		Timestamp: time.Now().Format(time.RFC3339),
		Total:     len(results),
		Results:   results,
	}
	for _, result := range results {
		if result.Status == StatusPass {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// ExportResults writes the summary as JSON to outputPath
func (r *BenchmarkRunner) ExportResults(results []TestResult, outputPath string) error {
	jsonData, err := json.MarshalIndent(Summarize(results), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(outputPath, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

func (r *BenchmarkRunner) printf(format string, args ...any) {
	if r.opts.Verbose {
		fmt.Fprintf(r.opts.Out, format, args...)
	}
}
