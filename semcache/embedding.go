package semcache

import (
	"context"
	"crypto/sha256"
	"math"
)

// Dimensions is the fixed embedding vector length used throughout the cache.
// It matches text-embedding-3-small so a real provider can be swapped in
// without a schema change.
const Dimensions = 1536

// Embedder turns text into a fixed-length vector. Implementations must be
// deterministic over the normalized form of the input: Embed(p) and
// Embed(Normalize(p)) return the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is the default pseudo-embedding provider: the sha256 digest
// of the normalized text, each byte scaled to [0,1], zero-padded to
// Dimensions. Identical normalized prompts always produce identical vectors
// (so exact repeats match at similarity 1.0), but the vectors carry no
// semantic meaning beyond textual identity.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(Normalize(text)))
	vec := make([]float32, Dimensions)
	for i, b := range sum {
		vec[i] = float32(b) / 255
	}
	return vec, nil
}

func (HashEmbedder) Dimensions() int {
	return Dimensions
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / math.Sqrt(normA*normB)
}
