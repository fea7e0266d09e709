// ABOUTME: Answerer retrieves the closest documents and asks the model once
// ABOUTME: An empty retrieval is logged as a warning and generation still runs
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/metrics"
	"github.com/harper/pdfrag/internal/models"
)

// DefaultK is how many documents are retrieved per question
const DefaultK = 5

// EmptyContextWarning is logged when retrieval finds nothing
const EmptyContextWarning = "EmptyContextWarning: no documents retrieved, generating without context"

var (
	// ErrEmptyQuestion is returned before any network call for a blank question
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrRetrieval wraps failures to search the index
	ErrRetrieval = errors.New("retrieval failed")
	// ErrGeneration wraps failures of the language model call
	ErrGeneration = errors.New("generation failed")
)

// Retriever finds documents similar to a question
type Retriever interface {
	Search(ctx context.Context, question string, k int) ([]models.SearchResult, error)
}

// Generator completes a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is an answer with the documents it was grounded on
type Result struct {
	Answer       string                `json:"answer"`
	Sources      []models.SearchResult `json:"sources"`
	Prompt       string                `json:"-"`
	EmptyContext bool                  `json:"empty_context"`
}

// Answerer runs the retrieve, prompt and generate sequence
type Answerer struct {
	generator Generator
	k         int
	logger    *log.Logger
}

// New creates an Answerer; k <= 0 selects DefaultK
func New(generator Generator, k int, logger *log.Logger) *Answerer {
	if k <= 0 {
		k = DefaultK
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Answerer{generator: generator, k: k, logger: logger}
}

// K is the number of documents retrieved per question
func (a *Answerer) K() int { return a.k }

// WithK returns a copy retrieving k documents; k <= 0 keeps the current value
func (a *Answerer) WithK(k int) *Answerer {
	if k <= 0 || k == a.k {
		return a
	}
	c := *a
	c.k = k
	return &c
}

// Answer returns the model output for question, verbatim
func (a *Answerer) Answer(ctx context.Context, question string, r Retriever) (string, error) {
	res, err := a.Ask(ctx, question, r)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Ask answers question and reports the retrieved sources and prompt
func (a *Answerer) Ask(ctx context.Context, question string, r Retriever) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	results, err := r.Search(ctx, question, a.k)
	if err != nil {
		metrics.Answers.WithLabelValues(metrics.StatusError).Inc()
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	res := &Result{
		Sources:      results,
		EmptyContext: len(results) == 0,
		Prompt:       BuildPrompt(JoinContext(results), question),
	}
	if res.EmptyContext {
		a.logger.Warn(EmptyContextWarning, "question", question)
	}

	start := time.Now()
	out, err := a.generator.Generate(ctx, res.Prompt)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Answers.WithLabelValues(metrics.StatusError).Inc()
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	res.Answer = out

	status := metrics.StatusOK
	if res.EmptyContext {
		status = metrics.StatusEmpty
	}
	metrics.Answers.WithLabelValues(status).Inc()
	a.logger.Debug("answered", "question", question, "sources", len(results), "duration", time.Since(start))
	return res, nil
}

// JoinContext concatenates document contents in rank order
func JoinContext(results []models.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Document.Content
	}
	return strings.Join(parts, ContextSeparator)
}
