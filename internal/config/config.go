// ABOUTME: Centralized configuration for the pdfrag CLI, web server and MCP server
// ABOUTME: Loads an optional YAML file, then environment variables, with validation and defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreCharm  = "charm"
	StoreQdrant = "qdrant"
)

// Embedding providers
const (
	EmbedderOpenAI  = "openai"
	EmbedderHashing = "hashing"
)

// Config holds all configuration for pdfrag
type Config struct {
	DataDir string `yaml:"data_dir"`

	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	OCR       OCRConfig       `yaml:"ocr"`
	HTTP      HTTPConfig      `yaml:"http"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects and locates the vector store
type StoreConfig struct {
	Backend          string `yaml:"backend"`
	Path             string `yaml:"path"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
	QdrantAPIKey     string `yaml:"-"`
	CharmHost        string `yaml:"charm_host"`
	CharmDB          string `yaml:"charm_db"`
	CharmAutoSync    bool   `yaml:"charm_auto_sync"`
}

// EmbeddingConfig configures the embedding provider and its cache
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimension of zero leaves the choice to the provider
	Dimension  int           `yaml:"dimension"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"-"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisDB    int           `yaml:"redis_db"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// LLMConfig configures the generation endpoint
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// ChunkingConfig holds the splitter policy
type ChunkingConfig struct {
	Size                int `yaml:"size"`
	Overlap             int `yaml:"overlap"`
	TableSplitThreshold int `yaml:"table_split_threshold"`
}

// RetrievalConfig holds query-time settings
type RetrievalConfig struct {
	K int `yaml:"k"`
}

// OCRConfig controls image and scanned-page OCR
type OCRConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Language     string `yaml:"language"`
	ScannedPages bool   `yaml:"scanned_pages"`
}

// HTTPConfig configures the web server
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// ArchiveConfig enables copying uploads to S3
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		DataDir: filepath.Join(xdg.DataHome, "pdfrag"),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Backend:          StoreSQLite,
			QdrantCollection: "pdfrag",
			CharmHost:        "cloud.charm.sh",
			CharmDB:          "pdfrag",
			CharmAutoSync:    true,
		},
		Embedding: EmbeddingConfig{
			Provider:   EmbedderOpenAI,
			Model:      "text-embedding-3-small",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
			CacheTTL:   7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
			MaxRetries:  1,
			RetryDelay:  2 * time.Second,
		},
		Chunking: ChunkingConfig{
			Size:                800,
			Overlap:             250,
			TableSplitThreshold: 1000,
		},
		Retrieval: RetrievalConfig{K: 5},
		OCR: OCRConfig{
			Enabled:      true,
			Language:     "eng",
			ScannedPages: true,
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			MaxUploadMB: 50,
		},
		Archive: ArchiveConfig{Prefix: "uploads/"},
	}
}

// Load reads configuration from the YAML file at path (optional, PDFRAG_CONFIG
// when empty) and then from environment variables, which take precedence.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("PDFRAG_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.Store.Path == "" {
		cfg.Store.Path = cfg.defaultStorePath()
	}

	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("PDFRAG_DATA_DIR", c.DataDir)
	c.Log.Level = getEnv("PDFRAG_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("PDFRAG_LOG_FORMAT", c.Log.Format)

	c.Store.Backend = getEnv("PDFRAG_STORE", c.Store.Backend)
	c.Store.Path = getEnv("PDFRAG_STORE_PATH", c.Store.Path)
	c.Store.QdrantURL = getEnv("QDRANT_URL", c.Store.QdrantURL)
	c.Store.QdrantCollection = getEnv("QDRANT_COLLECTION", c.Store.QdrantCollection)
	c.Store.QdrantAPIKey = getEnv("QDRANT_API_KEY", c.Store.QdrantAPIKey)
	c.Store.CharmHost = getEnv("CHARM_HOST", c.Store.CharmHost)
	c.Store.CharmDB = getEnv("CHARM_DB", c.Store.CharmDB)
	c.Store.CharmAutoSync = getEnvBool("CHARM_AUTO_SYNC", c.Store.CharmAutoSync)

	c.Embedding.Provider = getEnv("PDFRAG_EMBEDDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getEnvInt("EMBEDDING_DIMENSION", c.Embedding.Dimension)
	c.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	c.Embedding.Timeout = getEnvDuration("EMBEDDING_TIMEOUT", c.Embedding.Timeout)
	c.Embedding.MaxRetries = getEnvInt("EMBEDDING_MAX_RETRIES", c.Embedding.MaxRetries)
	c.Embedding.RetryDelay = getEnvDuration("EMBEDDING_RETRY_DELAY", c.Embedding.RetryDelay)
	c.Embedding.RedisAddr = getEnv("REDIS_ADDR", c.Embedding.RedisAddr)
	c.Embedding.RedisDB = getEnvInt("REDIS_DB", c.Embedding.RedisDB)
	c.Embedding.CacheTTL = getEnvDuration("REDIS_TTL", c.Embedding.CacheTTL)

	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = firstEnv("LLM_API_KEY", "OPENAI_API_KEY", "HUGGINGFACEHUB_API_TOKEN")
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.Temperature = float32(getEnvFloat("LLM_TEMPERATURE", float64(c.LLM.Temperature)))
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getEnvInt("LLM_MAX_RETRIES", c.LLM.MaxRetries)
	c.LLM.RetryDelay = getEnvDuration("LLM_RETRY_DELAY", c.LLM.RetryDelay)

	c.Chunking.Size = getEnvInt("CHUNK_SIZE", c.Chunking.Size)
	c.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", c.Chunking.Overlap)
	c.Chunking.TableSplitThreshold = getEnvInt("TABLE_SPLIT_THRESHOLD", c.Chunking.TableSplitThreshold)
	c.Retrieval.K = getEnvInt("RETRIEVAL_K", c.Retrieval.K)

	c.OCR.Enabled = getEnvBool("OCR_ENABLED", c.OCR.Enabled)
	c.OCR.Language = getEnv("OCR_LANGUAGE", c.OCR.Language)
	c.OCR.ScannedPages = getEnvBool("OCR_SCANNED_PAGES", c.OCR.ScannedPages)

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", c.HTTP.MaxUploadMB)

	c.Archive.Bucket = getEnv("UPLOAD_ARCHIVE_BUCKET", c.Archive.Bucket)
	c.Archive.Prefix = getEnv("UPLOAD_ARCHIVE_PREFIX", c.Archive.Prefix)
}

func (c *Config) defaultStorePath() string {
	switch c.Store.Backend {
	case StoreSQLite:
		return filepath.Join(c.DataDir, "index.db")
	case StoreQdrant:
		return c.Store.QdrantCollection
	case StoreCharm:
		return c.Store.CharmDB
	}
	return ""
}

// UploadDir is where uploaded PDFs are written
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// MaxUploadBytes is the request body limit for uploads
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.HTTP.MaxUploadMB) << 20
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite, StoreMemory, StoreCharm:
	case StoreQdrant:
		if c.Store.QdrantURL == "" {
			return errors.New("QDRANT_URL is required for the qdrant store")
		}
	default:
		return fmt.Errorf("PDFRAG_STORE must be one of sqlite, memory, charm, qdrant, got %q", c.Store.Backend)
	}
	switch c.Embedding.Provider {
	case EmbedderOpenAI, EmbedderHashing:
	default:
		return fmt.Errorf("PDFRAG_EMBEDDER must be openai or hashing, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must not be negative, got %d", c.Embedding.Dimension)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("PDFRAG_LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("CHUNK_OVERLAP must be 0 to CHUNK_SIZE-1, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.TableSplitThreshold <= 0 {
		return fmt.Errorf("TABLE_SPLIT_THRESHOLD must be positive, got %d", c.Chunking.TableSplitThreshold)
	}
	if c.Retrieval.K < 1 || c.Retrieval.K > 100 {
		return fmt.Errorf("RETRIEVAL_K must be 1-100, got %d", c.Retrieval.K)
	}
	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 10 {
		return fmt.Errorf("LLM_MAX_RETRIES must be 0-10, got %d", c.LLM.MaxRetries)
	}
	if c.Embedding.MaxRetries < 0 || c.Embedding.MaxRetries > 10 {
		return fmt.Errorf("EMBEDDING_MAX_RETRIES must be 0-10, got %d", c.Embedding.MaxRetries)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be 0-2, got %f", c.LLM.Temperature)
	}
	if c.HTTP.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.HTTP.MaxUploadMB)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
