// ABOUTME: Tests for the Tesseract OCR engine wrapper
// ABOUTME: Recognition checks skip when tesseract language data is missing
package tesseract

import (
	"context"
	"errors"
	"testing"
)

func TestRecognizeAfterClose(t *testing.T) {
	e, err := New("eng")
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = e.Recognize(context.Background(), []byte("png"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Recognize() error = %v, want ErrClosed", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRecognizeCancelled(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}
	defer func() { _ = e.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Recognize(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Recognize() error = %v, want context.Canceled", err)
	}
}
