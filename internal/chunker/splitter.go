// ABOUTME: Splitter cuts long fragment text into bounded, overlapping chunks
// ABOUTME: Prefers paragraph, then line, then sentence, then word boundaries
package chunker

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/harper/pdfrag/internal/models"
)

const (
	// DefaultSize is the target chunk length in characters
	DefaultSize = 800
	// DefaultOverlap is how many characters adjacent chunks share
	DefaultOverlap = 250
)

// DefaultSeparators lists split points from most to least preferred
var DefaultSeparators = []string{"\n\n", "\n", ".", " "}

// ErrInvalidConfig is returned for unusable size/overlap combinations
var ErrInvalidConfig = errors.New("invalid chunker config")

// Chunk is one span of the input text. Start and End are rune offsets;
// Overlap counts the leading runes shared with the previous chunk.
type Chunk struct {
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Overlap int    `json:"overlap"`
}

// Splitter implements recursive separator splitting with a hard-cut fallback
type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

// New creates a Splitter. Overlap must be smaller than size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}

	seps := make([][]rune, len(DefaultSeparators))
	for i, s := range DefaultSeparators {
		seps[i] = []rune(s)
	}

	return &Splitter{size: size, overlap: overlap, separators: seps}, nil
}

// NewDefault creates a Splitter with the 800/250 policy
func NewDefault() *Splitter {
	s, _ := New(DefaultSize, DefaultOverlap)
	return s
}

// Size returns the target chunk length
func (s *Splitter) Size() int { return s.size }

// Split returns the chunk texts for text
func (s *Splitter) Split(text string) []string {
	spans := s.SplitSpans(text)
	if spans == nil {
		return nil
	}
	out := make([]string, len(spans))
	for i, c := range spans {
		out[i] = c.Text
	}
	return out
}

// SplitSpans splits text into chunks of at most Size runes. Text at or below
// the target size comes back unchanged as a single chunk.
func (s *Splitter) SplitSpans(text string) []Chunk {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if n <= s.size {
		return []Chunk{{Text: text, Start: 0, End: n}}
	}

	var chunks []Chunk
	start, prevEnd := 0, 0
	for {
		if n-start <= s.size {
			chunks = append(chunks, Chunk{
				Text:    string(runes[start:]),
				Start:   start,
				End:     n,
				Overlap: prevEnd - start,
			})
			return chunks
		}

		end := s.cut(runes, start, prevEnd)
		chunks = append(chunks, Chunk{
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
			Overlap: prevEnd - start,
		})

		prevEnd = end
		start = s.nextStart(runes, start, end)
	}
}

// cut picks the end of the chunk beginning at start. The returned offset is
// always in (max(start, prevEnd), start+size], so every chunk reaches past
// the end of the one before it.
func (s *Splitter) cut(runes []rune, start, prevEnd int) int {
	window := runes[start : start+s.size]

	// First pass wants a chunk long enough to move past the overlap region.
	for _, minLen := range []int{s.overlap + 1, 1} {
		for _, sep := range s.separators {
			idx := lastIndex(window, sep)
			if idx < 0 {
				continue
			}
			if l := idx + len(sep); l >= minLen && start+l > prevEnd {
				return start + l
			}
		}
	}

	return start + s.size
}

// nextStart backs up by the overlap from end, aligned to the next word when
// possible. The result is always in (start, end].
func (s *Splitter) nextStart(runes []rune, start, end int) int {
	cand := end - s.overlap
	if s.overlap == 0 || cand <= start {
		return end
	}
	if unicode.IsSpace(runes[cand-1]) {
		return cand
	}
	for i := cand; i < end; i++ {
		if !unicode.IsSpace(runes[i]) {
			continue
		}
		j := i
		for j < end && unicode.IsSpace(runes[j]) {
			j++
		}
		if j < end {
			return j
		}
		break
	}
	return cand
}

// Join rebuilds the original text from chunks by dropping each declared overlap
func Join(chunks []Chunk) string {
	var out []rune
	for _, c := range chunks {
		r := []rune(c.Text)
		out = append(out, r[c.Overlap:]...)
	}
	return string(out)
}

// ChunkFragments splits every fragment flagged NeedsSplit whose content is
// longer than the target size. Chunks keep the parent's page, kind and ids.
func (s *Splitter) ChunkFragments(fragments []models.Fragment) []models.Fragment {
	out := make([]models.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if !f.NeedsSplit || utf8.RuneCountInString(f.Content) <= s.size {
			f.NeedsSplit = false
			out = append(out, f)
			continue
		}

		for i, c := range s.SplitSpans(f.Content) {
			part := f
			part.Content = c.Text
			part.ChunkIndex = i
			part.NeedsSplit = false
			out = append(out, part)
		}
	}
	return out
}

func lastIndex(hay, needle []rune) int {
	for i := len(hay) - len(needle); i >= 0; i-- {
		match := true
		for j, r := range needle {
			if hay[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
