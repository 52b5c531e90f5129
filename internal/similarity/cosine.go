// Package similarity scores how close two narrations are.
package similarity

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two dense vectors differ in length
var ErrDimensionMismatch = errors.New("vectors have different dimensions")

// Cosine returns the cosine of the angle between a and b. Magnitudes are
// always computed, so inputs need not be unit vectors. A zero vector scores 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	return cosine(a, b, len(a)), nil
}

// CosinePartial treats components missing from the shorter vector as zero
func CosinePartial(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	return cosine(a, b, n)
}

func cosine(a, b []float32, n int) float64 {
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		dot += x * y
		magA += x * x
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Normalize scales v to unit length in place and returns it. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
