// ABOUTME: OCR engine backed by Tesseract through gosseract
// ABOUTME: One client is reused and guarded by a mutex since it is not goroutine safe
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("ocr engine is closed")

// Engine recognizes text in images
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates an engine for the given languages (e.g. "eng" or "eng+deu")
func New(language string) (*Engine, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(strings.Split(language, "+")...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set OCR language %q: %w", language, err)
		}
	}
	return &Engine{client: client}, nil
}

// Recognize returns the text Tesseract finds in the PNG bytes
func (e *Engine) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return "", ErrClosed
	}

	if err := e.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}
	return text, nil
}

// Version reports the Tesseract library version
func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return ""
	}
	return e.client.Version()
}

// Close releases the Tesseract client
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
