package embedding

import (
	"io"
	"math"
)

// Preparer is implemented by embedders that must see the corpus before
// they can embed (for example TF-IDF).
type Preparer interface {
	Prepare(corpus []string) error
}

// Stateful is implemented by embedders whose fitted state must be persisted
// next to the chunk store so query vectors match build-time vectors.
type Stateful interface {
	SaveState(w io.Writer) error
	LoadState(r io.Reader) error
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
