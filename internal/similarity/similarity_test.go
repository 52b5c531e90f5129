package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosinePartial(t *testing.T) {
	assert.InDelta(t, 1.0, CosinePartial([]float32{1, 2}, []float32{1, 2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosinePartial([]float32{1}, []float32{0, 5}), 1e-9)
	assert.Equal(t, 0.0, CosinePartial(nil, []float32{1}))
}

func TestCosineIsSymmetric(t *testing.T) {
	a := []float32{0.3, -1.2, 4, 0}
	b := []float32{1, 0.5, 2.5, -3}
	ab, err := Cosine(a, b)
	require.NoError(t, err)
	ba, err := Cosine(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestSparseCosine(t *testing.T) {
	a := SparseVector{"payment": 1, "acme": 2}
	b := SparseVector{"payment": 1, "acme": 2}
	assert.InDelta(t, 1.0, SparseCosine(a, b), 1e-9)

	c := SparseVector{"salary": 3}
	assert.Equal(t, 0.0, SparseCosine(a, c))
	assert.Equal(t, 0.0, SparseCosine(a, SparseVector{}))

	d := SparseVector{"payment": 1}
	assert.InDelta(t, 1/2.2360679775, SparseCosine(a, d), 1e-9)
}

func TestSparseDense(t *testing.T) {
	v := SparseVector{"b": 2, "zzz": 9}
	assert.Equal(t, []float32{0, 2, 0}, v.Dense([]string{"a", "b", "c"}))
}

func TestEditSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, EditSimilarity("", ""))
	assert.Equal(t, 1.0, EditSimilarity("acme", "acme"))
	assert.InDelta(t, 0.75, EditSimilarity("acme", "acne"), 1e-9)
	assert.Equal(t, 0.0, EditSimilarity("abc", "xyz"))
}
