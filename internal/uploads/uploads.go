// ABOUTME: Persists uploaded PDFs under the data directory with uuid-prefixed names
// ABOUTME: Prefixes keep two uploads with the same name from overwriting each other
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the size limit
var ErrTooLarge = errors.New("upload exceeds size limit")

// Store writes uploads into one directory
type Store struct {
	dir      string
	maxBytes int64
	newID    func() string
}

// New creates a Store rooted at dir; maxBytes <= 0 disables the limit
func New(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes, newID: uuid.NewString}
}

// Dir is where uploads are written
func (s *Store) Dir() string { return s.dir }

// Save copies r to <dir>/<uuid>_<name> and returns the path
func (s *Store) Save(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(s.dir, s.newID()+"_"+SanitizeName(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, s.maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// SanitizeName strips directory components and characters that are awkward
// in file names
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload.pdf"
	}
	return name
}
