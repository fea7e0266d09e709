// ABOUTME: Embedder is the capability that turns text into a fixed-length vector
// ABOUTME: Implemented by the OpenAI-compatible client, the hashing embedder and the cache
package embedding

import (
	"context"
	"math"
)

// Embedder converts text into a dense vector of fixed dimensionality
type Embedder interface {
	// Name identifies the model; vectors from different names are not comparable
	Name() string
	// Dimension is the vector length, or 0 when only known after the first call
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Normalize scales v to unit length in place and returns it
func Normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}
