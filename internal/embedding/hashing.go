// ABOUTME: Hashing embedder projects token counts into a fixed number of buckets
// ABOUTME: Runs offline and deterministically, for demos without an embedding endpoint
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashingDimension matches the MiniLM sentence embedders
const DefaultHashingDimension = 384

// Hashing is a feature-hashing bag-of-words embedder. Unlike TF-IDF it needs
// no corpus pass, so vectors stay comparable as the index grows.
type Hashing struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashing creates a hashing embedder; dimension <= 0 selects the default
func NewHashing(dimension int) *Hashing {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	return &Hashing{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (h *Hashing) Name() string { return fmt.Sprintf("hashing-%d", h.dimension) }

func (h *Hashing) Dimension() int { return h.dimension }

// Embed hashes each token into a bucket with a sign bit, then applies
// sublinear term frequency and L2 normalization.
func (h *Hashing) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dimension)
	counts := make(map[string]int)
	for _, tok := range h.tokenize(text) {
		counts[tok]++
	}

	for tok, n := range counts {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()

		idx := int(sum % uint64(h.dimension))
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		vec[idx] += sign * (1 + math.Log(float64(n)))
	}

	return Normalize(vec), nil
}

func (h *Hashing) tokenize(text string) []string {
	raw := h.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := h.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "what", "which", "who", "how", "do", "does",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
