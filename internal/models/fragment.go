// ABOUTME: Fragment represents one unit of content extracted from a PDF page
// ABOUTME: Kinds cover paragraph text, serialized tables, OCR text and raw images
package models

import (
	"errors"
	"fmt"
)

// FragmentKind identifies what part of a page a fragment came from
type FragmentKind string

const (
	KindText      FragmentKind = "text"
	KindTable     FragmentKind = "table"
	KindImageText FragmentKind = "image_text"
	KindImage     FragmentKind = "image"
)

// IsValid checks if the kind is one of the defined fragment kinds
func (k FragmentKind) IsValid() bool {
	switch k {
	case KindText, KindTable, KindImageText, KindImage:
		return true
	}
	return false
}

// IsImage reports whether the kind carries an image id
func (k FragmentKind) IsImage() bool {
	return k == KindImageText || k == KindImage
}

// Fragment is one extracted unit of PDF content tagged with page and kind
type Fragment struct {
	Content  string       `json:"content"`
	Page     int          `json:"page"`
	Kind     FragmentKind `json:"kind"`
	TableID  string       `json:"table_id,omitempty"`
	ImageID  string       `json:"image_id,omitempty"`
	RawBytes []byte       `json:"-"`

	// NeedsSplit marks content the chunker must split before indexing
	NeedsSplit bool `json:"needs_split,omitempty"`
	// ChunkIndex is the 0-based position of a chunk within its parent fragment
	ChunkIndex int `json:"chunk_index,omitempty"`
}

// Validate checks the kind-dependent field rules
func (f *Fragment) Validate() error {
	if f.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", f.Page)
	}
	if !f.Kind.IsValid() {
		return fmt.Errorf("invalid fragment kind %q", f.Kind)
	}
	if f.Kind == KindTable && f.TableID == "" {
		return errors.New("table fragment requires a table id")
	}
	if f.Kind != KindTable && f.TableID != "" {
		return fmt.Errorf("%s fragment must not carry a table id", f.Kind)
	}
	if f.Kind.IsImage() && f.ImageID == "" {
		return fmt.Errorf("%s fragment requires an image id", f.Kind)
	}
	if !f.Kind.IsImage() && f.ImageID != "" {
		return fmt.Errorf("%s fragment must not carry an image id", f.Kind)
	}
	if f.Kind != KindImage && f.RawBytes != nil {
		return fmt.Errorf("%s fragment must not carry raw bytes", f.Kind)
	}
	return nil
}

// ID returns the table or image id, whichever the kind populates
func (f *Fragment) ID() string {
	if f.Kind == KindTable {
		return f.TableID
	}
	return f.ImageID
}

// NewTableID builds the id of the n-th table on a page (n is 1-based)
func NewTableID(page, n int) string {
	return fmt.Sprintf("table_%d_%d", page, n)
}

// NewImageID builds the id of the n-th image on a page (n is 1-based)
func NewImageID(page, n int) string {
	return fmt.Sprintf("image_%d_%d", page, n)
}

// ImagePlaceholder is the indexed content of an image fragment
func ImagePlaceholder(page int) string {
	return fmt.Sprintf("[Image on page %d]", page)
}
