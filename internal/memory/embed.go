package memory

import "math"

// embedDim is the fixed length of pseudo-embedding vectors.
const embedDim = 64

// Embed maps text to a normalized fixed-length vector using character
// position hashing. Deterministic and cheap — no external calls. Retrieval
// relevance only needs a stable text-to-vector map, not a semantic model.
func Embed(text string) []float64 {
	vec := make([]float64, embedDim)
	for i, r := range []rune(text) {
		vec[i%embedDim] += float64(r)
	}
	var mag float64
	for _, v := range vec {
		mag += v * v
	}
	mag = math.Sqrt(mag)
	if mag == 0 {
		mag = 1
	}
	for i := range vec {
		vec[i] /= mag
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors. Zero-magnitude
// inputs yield 0 rather than NaN.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	denom := math.Sqrt(magA) * math.Sqrt(magB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
