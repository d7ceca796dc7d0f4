package cache

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared. This is a programming-contract violation, not a runtime
// condition, and is never surfaced past the cache.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity computes the normalized similarity between two
// fixed-length vectors: dot(a,b) / (|a|·|b|). The result is 0 when either
// vector has zero norm.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}
