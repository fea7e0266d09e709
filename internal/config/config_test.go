// ABOUTME: Tests for centralized configuration system
// ABOUTME: Verifies defaults, YAML file loading, env overrides and validation
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"PDFRAG_CONFIG", "PDFRAG_DATA_DIR", "PDFRAG_LOG_LEVEL", "PDFRAG_LOG_FORMAT",
	"PDFRAG_STORE", "PDFRAG_STORE_PATH", "QDRANT_URL", "QDRANT_COLLECTION",
	"CHARM_HOST", "CHARM_DB", "CHARM_AUTO_SYNC",
	"PDFRAG_EMBEDDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSION", "EMBEDDING_BASE_URL",
	"EMBEDDING_API_KEY", "EMBEDDING_TIMEOUT", "EMBEDDING_MAX_RETRIES", "EMBEDDING_RETRY_DELAY",
	"REDIS_ADDR", "REDIS_DB", "REDIS_TTL",
	"LLM_BASE_URL", "LLM_API_KEY", "OPENAI_API_KEY", "HUGGINGFACEHUB_API_TOKEN", "LLM_MODEL",
	"LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT", "LLM_MAX_RETRIES", "LLM_RETRY_DELAY",
	"CHUNK_SIZE", "CHUNK_OVERLAP", "TABLE_SPLIT_THRESHOLD", "RETRIEVAL_K",
	"OCR_ENABLED", "OCR_LANGUAGE", "OCR_SCANNED_PAGES",
	"HTTP_ADDR", "MAX_UPLOAD_MB", "UPLOAD_ARCHIVE_BUCKET", "UPLOAD_ARCHIVE_PREFIX",
}

// clearEnv blanks every key Load reads; empty values count as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("Store.Backend = %s, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(cfg.DataDir, "index.db") {
		t.Errorf("Store.Path = %s, want index.db under data dir", cfg.Store.Path)
	}
	if cfg.Chunking.Size != 800 || cfg.Chunking.Overlap != 250 {
		t.Errorf("Chunking = %d/%d, want 800/250", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.Chunking.TableSplitThreshold != 1000 {
		t.Errorf("TableSplitThreshold = %d, want 1000", cfg.Chunking.TableSplitThreshold)
	}
	if cfg.Retrieval.K != 5 {
		t.Errorf("Retrieval.K = %d, want 5", cfg.Retrieval.K)
	}
	if cfg.LLM.MaxRetries != 1 {
		t.Errorf("LLM.MaxRetries = %d, want 1", cfg.LLM.MaxRetries)
	}
	if cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("LLM.Timeout = %v, want 60s", cfg.LLM.Timeout)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 1000 {
		t.Errorf("LLM.MaxTokens = %d, want 1000", cfg.LLM.MaxTokens)
	}
	if !cfg.OCR.Enabled {
		t.Error("OCR.Enabled = false, want true")
	}
	if cfg.UploadDir() != filepath.Join(cfg.DataDir, "uploads") {
		t.Errorf("UploadDir() = %s", cfg.UploadDir())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PDFRAG_STORE", "memory")
	t.Setenv("PDFRAG_EMBEDDER", "hashing")
	t.Setenv("EMBEDDING_DIMENSION", "128")
	t.Setenv("LLM_MODEL", "mistralai/Mistral-7B-Instruct-v0.3")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("RETRIEVAL_K", "8")
	t.Setenv("OCR_ENABLED", "false")
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "hf-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Backend != StoreMemory {
		t.Errorf("Store.Backend = %s, want memory", cfg.Store.Backend)
	}
	if cfg.Embedding.Provider != EmbedderHashing || cfg.Embedding.Dimension != 128 {
		t.Errorf("Embedding = %s/%d, want hashing/128", cfg.Embedding.Provider, cfg.Embedding.Dimension)
	}
	if cfg.LLM.Model != "mistralai/Mistral-7B-Instruct-v0.3" {
		t.Errorf("LLM.Model = %s", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 15*time.Second {
		t.Errorf("LLM.Timeout = %v, want 15s", cfg.LLM.Timeout)
	}
	if cfg.Retrieval.K != 8 {
		t.Errorf("Retrieval.K = %d, want 8", cfg.Retrieval.K)
	}
	if cfg.OCR.Enabled {
		t.Error("OCR.Enabled = true, want false")
	}
	if cfg.LLM.APIKey != "hf-token" {
		t.Errorf("LLM.APIKey = %q, want fallback to HUGGINGFACEHUB_API_TOKEN", cfg.LLM.APIKey)
	}
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai")
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "hf")
	t.Setenv("LLM_API_KEY", "llm")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.LLM.APIKey != "llm" {
		t.Errorf("LLM.APIKey = %q, want llm", cfg.LLM.APIKey)
	}
	if cfg.Embedding.APIKey != "openai" {
		t.Errorf("Embedding.APIKey = %q, want openai", cfg.Embedding.APIKey)
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "pdfrag.yaml")
	content := `data_dir: ` + dir + `
store:
  backend: memory
chunking:
  size: 400
  overlap: 100
llm:
  model: from-file
  timeout: 20s
retrieval:
  k: 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_MODEL", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != dir {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir, dir)
	}
	if cfg.Chunking.Size != 400 || cfg.Chunking.Overlap != 100 {
		t.Errorf("Chunking = %d/%d, want 400/100", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.LLM.Timeout != 20*time.Second {
		t.Errorf("LLM.Timeout = %v, want 20s", cfg.LLM.Timeout)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("LLM.Model = %s, env should override file", cfg.LLM.Model)
	}
	if cfg.Retrieval.K != 3 {
		t.Errorf("Retrieval.K = %d, want 3", cfg.Retrieval.K)
	}
	// Unset keys keep defaults
	if cfg.Chunking.TableSplitThreshold != 1000 {
		t.Errorf("TableSplitThreshold = %d, want default 1000", cfg.Chunking.TableSplitThreshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store.Backend = "chroma" }, "PDFRAG_STORE"},
		{"qdrant without url", func(c *Config) { c.Store.Backend = StoreQdrant }, "QDRANT_URL"},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "minilm" }, "PDFRAG_EMBEDDER"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = 800 }, "CHUNK_OVERLAP"},
		{"zero k", func(c *Config) { c.Retrieval.K = 0 }, "RETRIEVAL_K"},
		{"too many retries", func(c *Config) { c.LLM.MaxRetries = 11 }, "LLM_MAX_RETRIES"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "PDFRAG_LOG_FORMAT"},
		{"hot temperature", func(c *Config) { c.LLM.Temperature = 3 }, "LLM_TEMPERATURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}
