// Package vector provides vector math operations for toolgraph.
//
// This package consolidates the similarity calculations used by the graph
// projectors and the retrieval engine. Use these functions instead of
// implementing your own to ensure consistency across the codebase.
//
// Main Functions:
//   - CosineSimilarity: Standard similarity for float32 vectors (most common)
//   - CosineSimilarityFloat64: High-precision similarity for float64 vectors
//   - DotProduct: Dot product for float32 vectors
//   - Normalize: Returns normalized copy of vector
package vector

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns value in range [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
//
// Uses the SIMD-accelerated vek implementation. Mismatched or zero-length
// vectors score 0 rather than erroring, so callers can feed raw store data.
//
// Example:
//
//	a := []float32{1.0, 2.0, 3.0}
//	b := []float32{4.0, 5.0, 6.0}
//	sim := vector.CosineSimilarity(a, b)  // Returns ~0.9746
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	// vek returns NaN for zero vectors, we want 0
	result := vek32.CosineSimilarity(a, b)
	if math.IsNaN(float64(result)) {
		return 0
	}
	return float64(result)
}

// CosineSimilarityFloat64 calculates cosine similarity between two float64 vectors.
// Returns value in range [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
func CosineSimilarityFloat64(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct calculates the dot product of two float32 vectors.
// Returns 0 if the vectors are empty or have different lengths.
// For normalized vectors, dot product equals cosine similarity.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b))
}

// Norm returns the Euclidean norm (magnitude) of a vector.
func Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(vek32.Norm(v))
}

// Normalize returns a normalized copy of the vector.
// The input vector is not modified.
func Normalize(vec []float32) []float32 {
	n := vek32.Norm(vec)
	if n == 0 {
		return make([]float32, len(vec))
	}

	invNorm := 1.0 / n
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v * invNorm
	}
	return normalized
}
