// Package embeddings provides vector utilities shared by embedding providers.
package embeddings

import "math"

// NormalizeL2 scales vector to unit length in place. Cosine similarity in the
// store assumes unit vectors; providers whose output is not already normalized
// (e.g. Gemini at reduced dimensions) must call this before persisting.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}
