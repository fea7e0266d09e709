// ABOUTME: App is the process context that owns config, logger and every expensive collaborator
// ABOUTME: Each collaborator is built on first use, at most once, and torn down by Close
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/answer"
	"github.com/harper/pdfrag/internal/chunker"
	"github.com/harper/pdfrag/internal/config"
	"github.com/harper/pdfrag/internal/embedding"
	"github.com/harper/pdfrag/internal/extract"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/ingest"
	"github.com/harper/pdfrag/internal/llm"
	"github.com/harper/pdfrag/internal/ocr/mupdf"
	"github.com/harper/pdfrag/internal/ocr/tesseract"
	"github.com/harper/pdfrag/internal/uploads"
	"github.com/harper/pdfrag/internal/vectorstore"
	"github.com/harper/pdfrag/internal/vectorstore/charmkv"
	"github.com/harper/pdfrag/internal/vectorstore/memory"
	"github.com/harper/pdfrag/internal/vectorstore/qdrant"
	"github.com/harper/pdfrag/internal/vectorstore/sqlite"
)

// lazy memoizes one constructor result
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(build func() (T, error)) (T, error) {
	l.once.Do(func() { l.val, l.err = build() })
	return l.val, l.err
}

// App wires the application from config
type App struct {
	cfg    *config.Config
	logger *log.Logger

	embedder  lazy[embedding.Embedder]
	generator lazy[answer.Generator]
	ocr       lazy[extract.OCR]
	splitter  lazy[*chunker.Splitter]
	extractor lazy[*extract.Extractor]
	indexer   lazy[*index.Indexer]
	answerer  lazy[*answer.Answerer]
	pipeline  lazy[*ingest.Pipeline]

	// newGenerator is swapped out in tests
	newGenerator func(*config.LLMConfig) (answer.Generator, error)

	mu      sync.Mutex
	stores  map[string]vectorstore.Store
	closers []io.Closer
	closed  bool
}

// New creates an App; nothing is connected until first use
func New(cfg *config.Config, logger *log.Logger) *App {
	if logger == nil {
		logger = log.Default()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		stores: make(map[string]vectorstore.Store),
	}
	a.newGenerator = a.openAIGenerator
	return a
}

// Config returns the loaded configuration
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root logger
func (a *App) Logger() *log.Logger { return a.logger }

// Embedder returns the configured embedding provider, cached through Redis
// when REDIS_ADDR is set
func (a *App) Embedder() (embedding.Embedder, error) {
	return a.embedder.get(func() (embedding.Embedder, error) {
		ec := a.cfg.Embedding
		var base embedding.Embedder
		switch ec.Provider {
		case config.EmbedderHashing:
			base = embedding.NewHashing(ec.Dimension)
		default:
			client, err := llm.NewClient(&llm.ClientConfig{
				APIKey:         ec.APIKey,
				BaseURL:        ec.BaseURL,
				EmbeddingModel: ec.Model,
				Dimensions:     ec.Dimension,
				Timeout:        ec.Timeout,
				MaxRetries:     ec.MaxRetries,
				RetryDelay:     ec.RetryDelay,
			})
			if err != nil {
				return nil, fmt.Errorf("embedding client: %w", err)
			}
			base = client
		}

		if ec.RedisAddr == "" {
			return base, nil
		}
		cache, err := embedding.NewRedisCache(context.Background(), ec.RedisAddr, ec.RedisDB, ec.CacheTTL)
		if err != nil {
			a.logger.Warn("embedding cache disabled", "err", err)
			return base, nil
		}
		a.track(cache)
		return embedding.NewCached(base, cache, a.logger.With("component", "embedding")), nil
	})
}

// Generator returns the language model client
func (a *App) Generator() (answer.Generator, error) {
	return a.generator.get(func() (answer.Generator, error) {
		return a.newGenerator(&a.cfg.LLM)
	})
}

func (a *App) openAIGenerator(lc *config.LLMConfig) (answer.Generator, error) {
	client, err := llm.NewClient(&llm.ClientConfig{
		APIKey:      lc.APIKey,
		BaseURL:     lc.BaseURL,
		ChatModel:   lc.Model,
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
		Timeout:     lc.Timeout,
		MaxRetries:  lc.MaxRetries,
		RetryDelay:  lc.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	return client, nil
}

// OCR returns the OCR engine, or nil when OCR is disabled
func (a *App) OCR() (extract.OCR, error) {
	return a.ocr.get(func() (extract.OCR, error) {
		if !a.cfg.OCR.Enabled {
			return nil, nil
		}
		engine, err := tesseract.New(a.cfg.OCR.Language)
		if err != nil {
			return nil, err
		}
		a.track(engine)
		return engine, nil
	})
}

// Rasterizer returns the scanned-page renderer, or nil when disabled
func (a *App) Rasterizer() extract.Rasterizer {
	if !a.cfg.OCR.Enabled || !a.cfg.OCR.ScannedPages {
		return nil
	}
	return mupdf.New(0)
}

// Splitter returns the chunker built from the chunking policy
func (a *App) Splitter() (*chunker.Splitter, error) {
	return a.splitter.get(func() (*chunker.Splitter, error) {
		return chunker.New(a.cfg.Chunking.Size, a.cfg.Chunking.Overlap)
	})
}

// Extractor returns the PDF extractor. OCR failing to start degrades to
// text and tables only.
func (a *App) Extractor() (*extract.Extractor, error) {
	return a.extractor.get(func() (*extract.Extractor, error) {
		ocr, err := a.OCR()
		if err != nil {
			a.logger.Warn("OCR disabled", "err", err)
			ocr = nil
		}
		return extract.New(extract.Options{
			OCR:          ocr,
			Rasterizer:   a.Rasterizer(),
			ScannedPages: a.cfg.OCR.ScannedPages,
			TextSplit:    a.cfg.Chunking.Size,
			TableSplit:   a.cfg.Chunking.TableSplitThreshold,
			Logger:       a.logger.With("component", "extract"),
		}), nil
	})
}

// Store opens the configured default store
func (a *App) Store(ctx context.Context) (vectorstore.Store, error) {
	return a.OpenStore(ctx, a.cfg.Store.Path)
}

// OpenStore opens the configured backend at location, once per location
func (a *App) OpenStore(_ context.Context, location string) (vectorstore.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, vectorstore.ErrClosed
	}
	if s, ok := a.stores[location]; ok {
		return s, nil
	}

	sc := a.cfg.Store
	var (
		s   vectorstore.Store
		err error
	)
	switch sc.Backend {
	case config.StoreMemory:
		s = memory.New()
	case config.StoreSQLite:
		s, err = sqlite.OpenStore(location)
	case config.StoreCharm:
		s, err = charmkv.OpenStore(&charmkv.Config{Host: sc.CharmHost, DBName: location, AutoSync: sc.CharmAutoSync})
	case config.StoreQdrant:
		s = qdrant.New(qdrant.Config{URL: sc.QdrantURL, APIKey: sc.QdrantAPIKey, Collection: location})
	default:
		err = fmt.Errorf("unknown store backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}

	a.stores[location] = s
	a.logger.Debug("opened store", "backend", sc.Backend, "location", s.Location())
	return s, nil
}

// Handle reopens the default store for querying without ingesting
func (a *App) Handle(ctx context.Context) (*index.Handle, error) {
	emb, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	return index.LoadExisting(ctx, a.cfg.Store.Path, a.OpenStore, emb)
}

// Indexer returns the indexer over the default store
func (a *App) Indexer(ctx context.Context) (*index.Indexer, error) {
	return a.indexer.get(func() (*index.Indexer, error) {
		emb, err := a.Embedder()
		if err != nil {
			return nil, err
		}
		store, err := a.Store(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", index.ErrStoreUnavailable, err)
		}
		return index.New(emb, store, a.logger.With("component", "index")), nil
	})
}

// Answerer returns the question answerer
func (a *App) Answerer() (*answer.Answerer, error) {
	return a.answerer.get(func() (*answer.Answerer, error) {
		gen, err := a.Generator()
		if err != nil {
			return nil, err
		}
		return answer.New(gen, a.cfg.Retrieval.K, a.logger.With("component", "answer")), nil
	})
}

// Pipeline returns the ingestion pipeline
func (a *App) Pipeline(ctx context.Context) (*ingest.Pipeline, error) {
	return a.pipeline.get(func() (*ingest.Pipeline, error) {
		ix, err := a.Indexer(ctx)
		if err != nil {
			return nil, err
		}
		splitter, err := a.Splitter()
		if err != nil {
			return nil, err
		}
		ex, err := a.Extractor()
		if err != nil {
			return nil, err
		}

		var archiver uploads.Archiver
		if a.cfg.Archive.Bucket != "" {
			s3a, err := uploads.NewS3Archiver(ctx, a.cfg.Archive.Bucket, a.cfg.Archive.Prefix)
			if err != nil {
				a.logger.Warn("upload archiving disabled", "err", err)
			} else {
				archiver = s3a
			}
		}

		return ingest.New(ingest.Options{
			Extractor: ex,
			Splitter:  splitter,
			Indexer:   ix,
			Uploads:   uploads.New(a.cfg.UploadDir(), a.cfg.MaxUploadBytes()),
			Archiver:  archiver,
			Logger:    a.logger.With("component", "ingest"),
		}), nil
	})
}

// Close releases every opened store and engine
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for loc, s := range a.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store %s: %w", loc, err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) track(c io.Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, c)
}
