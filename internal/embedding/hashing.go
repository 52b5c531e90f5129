package embedding

import (
	"context"
	"hash/fnv"

	"semantic-reconciliation-service/internal/narration"
)

// DefaultHashingDimension matches the width of small sentence-embedding models
const DefaultHashingDimension = 384

// Hashing is an offline provider that hashes unigrams and bigrams into a
// fixed-width signed vector. Texts sharing words land on shared components,
// so cosine similarity tracks lexical overlap.
type Hashing struct {
	dim int
}

// NewHashing creates a hashing provider; dim <= 0 selects the default width
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &Hashing{dim: dim}
}

// Name returns the provider name
func (h *Hashing) Name() string { return ProviderHashing }

// Dimension returns the vector width
func (h *Hashing) Dimension() int { return h.dim }

// Embed hashes the features of text. Blank text yields the zero vector.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make([]float32, h.dim)
	tokens := narration.Tokens(text)
	h.add(v, tokens, 1)
	h.add(v, narration.Bigrams(tokens), 0.5)
	return v, nil
}

// EmbedBatch embeds each text in turn
func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hashing) add(v []float32, features []string, weight float32) {
	for _, f := range features {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(f))
		sum := hasher.Sum64()

		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			v[idx] -= weight
		} else {
			v[idx] += weight
		}
	}
}
