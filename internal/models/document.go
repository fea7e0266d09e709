// ABOUTME: Document wraps a fragment or chunk with metadata for indexing
// ABOUTME: Also defines search results and the per-source summary
package models

import (
	"strconv"
	"time"
)

// Metadata keys stored alongside every document
const (
	MetaPage     = "page"
	MetaType     = "type"
	MetaSource   = "source"
	MetaSourceID = "source_id"
	MetaTableID  = "table_id"
	MetaImageID  = "image_id"
	MetaChunk    = "chunk"
)

// Document is a fragment or chunk ready for embedding and storage
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"page_content"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewDocument wraps a fragment for the given source
func NewDocument(id string, f Fragment, source, sourceID string) Document {
	meta := map[string]string{
		MetaPage:     strconv.Itoa(f.Page),
		MetaType:     string(f.Kind),
		MetaSource:   source,
		MetaSourceID: sourceID,
		MetaChunk:    strconv.Itoa(f.ChunkIndex),
	}
	switch {
	case f.Kind == KindTable:
		meta[MetaTableID] = f.TableID
	case f.Kind.IsImage():
		meta[MetaImageID] = f.ImageID
	}
	return Document{
		ID:        id,
		Content:   f.Content,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}

// Page returns the page number from metadata, or 0 when missing
func (d Document) Page() int {
	p, err := strconv.Atoi(d.Metadata[MetaPage])
	if err != nil {
		return 0
	}
	return p
}

// Kind returns the fragment kind recorded in metadata
func (d Document) Kind() FragmentKind {
	return FragmentKind(d.Metadata[MetaType])
}

// SourceID returns the originating file identity
func (d Document) SourceID() string {
	return d.Metadata[MetaSourceID]
}

// Source returns the originating file path
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

// SearchResult is a stored document with its similarity to the query
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// SourceInfo summarizes the documents indexed for one source
type SourceInfo struct {
	SourceID  string `json:"source_id"`
	Source    string `json:"source"`
	Documents int    `json:"documents"`
}
