// Package embedding turns narration text into dense vectors.
//
// A Provider is constructed explicitly and handed to the matcher; nothing in
// this package keeps a process-wide model. Remote providers are wrapped in a
// Lazy, which defers construction to the first call, normalizes and caches
// vectors, and collapses concurrent requests for the same text.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable reports that the embedding resource could not be loaded or
// failed while computing a vector. Every provider error wraps it.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider computes a vector for a piece of text
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector length, or 0 when not known yet
	Dimension() int
	Name() string
}

// BatchProvider is implemented by providers that can embed many texts in one call
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Known provider names
const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderHashing = "hashing"
	ProviderTFIDF   = "tfidf"
)

// unavailable wraps err so that errors.Is(err, ErrUnavailable) holds
func unavailable(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
}

// nonEmpty replaces blank texts with a single space. Hosted embedding
// endpoints reject empty input.
func nonEmpty(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		out[i] = t
	}
	return out
}

func errBatchLength(want, got int) error {
	return fmt.Errorf("batch returned %d vectors for %d texts", got, want)
}
