// ABOUTME: OpenAI-compatible client for embeddings and answer generation
// ABOUTME: Adds per-attempt timeouts, bounded retries and a circuit breaker around each call
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harper/pdfrag/internal/util"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	// DefaultChatModel is the default model for completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
)

var (
	// ErrGeneration wraps every failed completion request
	ErrGeneration = errors.New("generation failed")
	// ErrEmbedding wraps every failed embedding request
	ErrEmbedding = errors.New("embedding failed")
	// ErrNoAPIKey is returned when the endpoint needs a token and none is configured
	ErrNoAPIKey = errors.New("API key is required")
)

// knownDimensions lists output sizes of common embedding models
var knownDimensions = map[string]int{
	string(openai.SmallEmbedding3):           1536,
	string(openai.LargeEmbedding3):           3072,
	string(openai.AdaEmbeddingV2):            1536,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// ClientConfig holds configuration for the client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	// Dimensions is sent with embedding requests when positive
	Dimensions  int
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	// HTTPClient overrides the transport, mostly for tests
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:         apiKey,
		ChatModel:      DefaultChatModel,
		EmbeddingModel: DefaultEmbeddingModel,
		Temperature:    0.2,
		MaxTokens:      1000,
		Timeout:        60 * time.Second,
		MaxRetries:     1,
		RetryDelay:     2 * time.Second,
	}
}

// Client wraps the go-openai client with retry logic
type Client struct {
	client  *openai.Client
	cfg     ClientConfig
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a client. A key is only optional for custom base URLs,
// since local OpenAI-compatible servers often run without auth.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm:" + oc.BaseURL,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		client:  openai.NewClientWithConfig(oc),
		cfg:     *cfg,
		breaker: breaker,
	}, nil
}

// Name identifies the embedding model, used in cache keys
func (c *Client) Name() string {
	return "openai:" + c.cfg.EmbeddingModel
}

// Dimension returns the embedding size, or 0 when the model is unknown
func (c *Client) Dimension() int {
	if c.cfg.Dimensions > 0 {
		return c.cfg.Dimensions
	}
	return knownDimensions[c.cfg.EmbeddingModel]
}

// Embed generates an embedding vector for text
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var embedding []float64

	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      []string{text},
			Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
			Dimensions: c.cfg.Dimensions,
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Data) == 0 {
			return errors.New("no embeddings returned")
		}

		embedding32 := resp.Data[0].Embedding
		embedding = make([]float64, len(embedding32))
		for i, v := range embedding32 {
			embedding[i] = float64(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return embedding, nil
}

// Generate sends prompt as a single user message and returns the completion verbatim
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var content string

	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices returned")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return content, nil
}

// call runs fn through the retry loop, each attempt guarded by the breaker
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := util.RetryPolicy{
		MaxRetries:     c.cfg.MaxRetries,
		BaseDelay:      c.cfg.RetryDelay,
		AttemptTimeout: c.cfg.Timeout,
	}

	return util.Do(ctx, policy, func(ctx context.Context) error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return util.Permanent(err)
		}
		return err
	})
}

// classify marks client errors that a retry cannot fix as permanent
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isPermanentStatus(apiErr.HTTPStatusCode) {
		return util.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isPermanentStatus(reqErr.HTTPStatusCode) {
		return util.Permanent(err)
	}
	return err
}

func isPermanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
