// Package embeddings defines the Provider interface for text-embedding
// backends and the vector helpers used to compare their output.
//
// The local word matcher embeds a recognised word and compares it against
// reference embeddings of animal labels. All vectors used in one comparison
// must come from the same model; callers key cached reference vectors by
// [Provider.ModelID] to keep that invariant.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider maps text to dense float32 vectors.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one call. The i-th result corresponds to
	// texts[i]. On error no partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by the model, or 0
	// if it is not yet known.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}

// Cosine returns the cosine similarity of a and b. It returns 0 when either
// vector has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
