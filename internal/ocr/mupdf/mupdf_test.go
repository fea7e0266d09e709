// ABOUTME: Tests for the MuPDF page rasterizer
// ABOUTME: Covers DPI defaults and open failures without needing a sample PDF
package mupdf

import (
	"path/filepath"
	"testing"
)

func TestNewDefaultsDPI(t *testing.T) {
	if got := New(0).DPI; got != DefaultDPI {
		t.Errorf("New(0).DPI = %v, want %v", got, DefaultDPI)
	}
	if got := New(72).DPI; got != 72 {
		t.Errorf("New(72).DPI = %v, want 72", got)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := New(0).Open(filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Fatal("Open() expected error for missing file")
	}
}
