// ABOUTME: Command-line benchmark runner for RAGAS-style evaluation
// ABOUTME: Scores faithfulness and context recall of answers and writes JSON results

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/pdfrag/benchmarks/ragas"
	"github.com/harper/pdfrag/internal/app"
	"github.com/harper/pdfrag/internal/config"
	"github.com/harper/pdfrag/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	scenarioPath := flag.String("scenarios", "", "YAML scenario file (default: built-in scenarios)")
	testID := flag.String("test", "", "Run only the scenario with this id")
	outputPath := flag.String("output", "benchmark_results.json", "Output path for JSON results")
	configPath := flag.String("config", "", "Path to a YAML config file")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	level := "warn"
	if *verbose {
		level = "debug"
	}
	a := app.New(cfg, logging.New(os.Stderr, logging.Options{Level: level, Format: cfg.Log.Format}))
	defer a.Close()

	scenarios := ragas.GetAllTests()
	if *scenarioPath != "" {
		if scenarios, err = ragas.LoadScenarios(*scenarioPath); err != nil {
			return err
		}
	}
	if *testID != "" {
		scenarios = filterScenarios(scenarios, *testID)
		if len(scenarios) == 0 {
			return fmt.Errorf("unknown scenario id %q", *testID)
		}
	}

	emb, err := a.Embedder()
	if err != nil {
		return err
	}
	gen, err := a.Generator()
	if err != nil {
		return err
	}
	ex, err := a.Extractor()
	if err != nil {
		return err
	}
	splitter, err := a.Splitter()
	if err != nil {
		return err
	}

	runner, err := ragas.NewBenchmarkRunner(ragas.Options{
		Embedder:  emb,
		Generator: gen,
		Extractor: ex,
		Splitter:  splitter,
		K:         cfg.Retrieval.K,
		Logger:    a.Logger(),
		Out:       os.Stdout,
		Verbose:   *verbose,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("========================================")
	fmt.Println("pdfrag RAGAS Benchmarks")
	fmt.Println("========================================")
	fmt.Printf("Running %d scenario(s)...\n", len(scenarios))

	results, err := runner.RunAllTests(ctx, scenarios)
	if err != nil {
		return fmt.Errorf("benchmark interrupted: %w", err)
	}

	summary := ragas.Summarize(results)
	fmt.Println("\n========================================")
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println("========================================")
	for _, result := range results {
		fmt.Printf("\n%s: %s\n", result.TestID, result.TestName)
		if result.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", result.ErrorMessage)
		}
		fmt.Printf("  Faithfulness: %.2f\n", result.FaithfulnessScore)
		fmt.Printf("  Context Recall: %.2f\n", result.ContextRecallScore)
		fmt.Printf("  Overall: %.2f\n", result.OverallScore)
		fmt.Printf("  Status: %s\n", result.Status)
	}
	fmt.Println("\n========================================")
	fmt.Printf("Total Tests: %d\n", summary.Total)
	fmt.Printf("Passed: %d\n", summary.Passed)
	fmt.Printf("Failed: %d\n", summary.Failed)
	fmt.Println("========================================")

	if err := runner.ExportResults(results, *outputPath); err != nil {
		return err
	}
	fmt.Printf("Results exported to: %s\n", *outputPath)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d scenario(s) failed", summary.Failed, summary.Total)
	}
	return nil
}

func filterScenarios(scenarios []ragas.TestScenario, id string) []ragas.TestScenario {
	for _, sc := range scenarios {
		if sc.ID == id {
			return []ragas.TestScenario{sc}
		}
	}
	return nil
}
