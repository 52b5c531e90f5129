package similarity

import "math"

// SparseVector maps terms to weights
type SparseVector map[string]float64

// SparseCosine is the cosine over the union of both key sets
func SparseCosine(a, b SparseVector) float64 {
	var dot, magA, magB float64
	for k, x := range a {
		magA += x * x
		if y, ok := b[k]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Dense projects a sparse vector onto an ordered vocabulary
func (v SparseVector) Dense(vocabulary []string) []float32 {
	out := make([]float32, len(vocabulary))
	for i, term := range vocabulary {
		out[i] = float32(v[term])
	}
	return out
}
