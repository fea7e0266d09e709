// ABOUTME: Tests for Fragment kinds and kind-dependent field rules
// ABOUTME: Verifies validation and id helpers used by the extractor
package models

import "testing"

func TestFragmentKind_IsValid(t *testing.T) {
	tests := []struct {
		kind FragmentKind
		want bool
	}{
		{KindText, true},
		{KindTable, true},
		{KindImageText, true},
		{KindImage, true},
		{FragmentKind(""), false},
		{FragmentKind("TEXT"), false},
		{FragmentKind("chart"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFragment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frag    Fragment
		wantErr bool
	}{
		{
			name: "text fragment",
			frag: Fragment{Content: "hello", Page: 1, Kind: KindText},
		},
		{
			name: "table with id",
			frag: Fragment{Content: "a | b", Page: 2, Kind: KindTable, TableID: NewTableID(2, 1)},
		},
		{
			name: "image with bytes",
			frag: Fragment{Content: ImagePlaceholder(1), Page: 1, Kind: KindImage, ImageID: NewImageID(1, 1), RawBytes: []byte{1}},
		},
		{
			name: "image with empty content",
			frag: Fragment{Page: 1, Kind: KindImage, ImageID: NewImageID(1, 1)},
		},
		{
			name:    "page zero",
			frag:    Fragment{Content: "x", Page: 0, Kind: KindText},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			frag:    Fragment{Content: "x", Page: 1, Kind: "chart"},
			wantErr: true,
		},
		{
			name:    "table without id",
			frag:    Fragment{Content: "a | b", Page: 1, Kind: KindTable},
			wantErr: true,
		},
		{
			name:    "text with image id",
			frag:    Fragment{Content: "x", Page: 1, Kind: KindText, ImageID: "image_1_1"},
			wantErr: true,
		},
		{
			name:    "ocr text with raw bytes",
			frag:    Fragment{Content: "x", Page: 1, Kind: KindImageText, ImageID: "image_1_1", RawBytes: []byte{1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frag.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIDHelpers(t *testing.T) {
	if got := NewTableID(3, 2); got != "table_3_2" {
		t.Errorf("NewTableID = %q, want %q", got, "table_3_2")
	}
	if got := NewImageID(1, 4); got != "image_1_4" {
		t.Errorf("NewImageID = %q, want %q", got, "image_1_4")
	}
	if got := ImagePlaceholder(7); got != "[Image on page 7]" {
		t.Errorf("ImagePlaceholder = %q", got)
	}
}

func TestNewDocument_Metadata(t *testing.T) {
	f := Fragment{Content: "Item | Amt", Page: 2, Kind: KindTable, TableID: "table_2_1", ChunkIndex: 1}
	doc := NewDocument("doc-1", f, "/tmp/a.pdf", "abc")

	if doc.Content != f.Content {
		t.Errorf("Content = %q, want %q", doc.Content, f.Content)
	}
	if doc.Page() != 2 {
		t.Errorf("Page() = %d, want 2", doc.Page())
	}
	if doc.Kind() != KindTable {
		t.Errorf("Kind() = %q, want %q", doc.Kind(), KindTable)
	}
	if doc.Metadata[MetaTableID] != "table_2_1" {
		t.Errorf("table_id = %q", doc.Metadata[MetaTableID])
	}
	if _, ok := doc.Metadata[MetaImageID]; ok {
		t.Error("table document should not carry image_id")
	}
	if doc.SourceID() != "abc" || doc.Source() != "/tmp/a.pdf" {
		t.Errorf("source = %q/%q", doc.Source(), doc.SourceID())
	}
	if doc.Metadata[MetaChunk] != "1" {
		t.Errorf("chunk = %q, want 1", doc.Metadata[MetaChunk])
	}
}
