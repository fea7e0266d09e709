// ABOUTME: End-to-end tests of the CLI commands against an in-memory index
// ABOUTME: Configures the app through environment variables like a user would

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// offlineEnv points the CLI at the memory store and the hashing embedder
func offlineEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PDFRAG_CONFIG", "")
	t.Setenv("PDFRAG_DATA_DIR", dir)
	t.Setenv("PDFRAG_STORE", "memory")
	t.Setenv("PDFRAG_STORE_PATH", "cli-test")
	t.Setenv("PDFRAG_EMBEDDER", "hashing")
	t.Setenv("OCR_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "")
	t.Setenv("UPLOAD_ARCHIVE_BUCKET", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSourcesEmptyIndex(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "sources")
	if err != nil {
		t.Fatalf("sources error = %v", err)
	}
	if !strings.Contains(out, "No documents indexed yet") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = run(t, "--format", "json", "sources")
	if err != nil {
		t.Fatalf("sources --format json error = %v", err)
	}
	if strings.TrimSpace(out) != "null" && strings.TrimSpace(out) != "[]" {
		t.Errorf("expected empty JSON list, got %q", out)
	}
}

func TestIngestReportsFailedFile(t *testing.T) {
	dir := offlineEnv(t)
	path := filepath.Join(dir, "notes.pdf")
	if err := os.WriteFile(path, []byte("plain text, not a PDF"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "ingest", path)
	if err == nil {
		t.Fatal("expected error for a file that is not a PDF")
	}
	if !strings.Contains(err.Error(), "1 of 1 file(s) failed") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "notes.pdf") || !strings.Contains(out, "failed") {
		t.Errorf("report should name the failed file:\n%s", out)
	}
}

func TestAskWithoutCredentials(t *testing.T) {
	offlineEnv(t)

	_, err := run(t, "ask", "What is the revenue?")
	if err == nil {
		t.Fatal("expected error without an API key")
	}
	if !strings.Contains(err.Error(), "API key is required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAskRejectsBadK(t *testing.T) {
	offlineEnv(t)

	_, err := run(t, "ask", "--k", "0", "question")
	if err == nil || !strings.Contains(err.Error(), "k must be positive") {
		t.Errorf("expected k validation error, got %v", err)
	}
}

func TestResetRequiresConfirm(t *testing.T) {
	offlineEnv(t)

	out, err := run(t, "reset")
	if err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if !strings.Contains(out, "--confirm") {
		t.Errorf("expected confirmation hint:\n%s", out)
	}

	out, err = run(t, "reset", "--confirm")
	if err != nil {
		t.Fatalf("reset --confirm error = %v", err)
	}
	if !strings.Contains(out, "Cleared :memory:") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	offlineEnv(t)
	t.Setenv("PDFRAG_STORE", "cassandra")

	_, err := run(t, "sources")
	if err == nil || !strings.Contains(err.Error(), "PDFRAG_STORE") {
		t.Errorf("expected config validation error, got %v", err)
	}
}
