package deepface

import "math"

// NormalizeEmbedding scales an embedding to unit length so euclidean
// distances between descriptors of different models stay in [0, 2].
func NormalizeEmbedding(embedding []float64) []float64 {
	if len(embedding) == 0 {
		return embedding
	}

	var norm float64
	for _, v := range embedding {
		norm += v * v
	}

	if norm == 0 {
		return embedding
	}

	norm = math.Sqrt(norm)
	normalized := make([]float64, len(embedding))
	for i, v := range embedding {
		normalized[i] = v / norm
	}

	return normalized
}
