package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"semantic-reconciliation-service/internal/narration"
	"semantic-reconciliation-service/internal/similarity"
)

// TFIDF is a lexical provider over a vocabulary fitted on the narrations of
// one run. Terms outside the fitted vocabulary are ignored.
type TFIDF struct {
	mu    sync.RWMutex
	terms []string
	index map[string]int
	idf   []float64
	docs  int
}

// NewTFIDF creates an unfitted provider
func NewTFIDF() *TFIDF {
	return &TFIDF{index: make(map[string]int)}
}

// FitTFIDF creates a provider fitted on docs
func FitTFIDF(docs []string) *TFIDF {
	t := NewTFIDF()
	t.Fit(docs)
	return t
}

// Fit rebuilds the vocabulary and inverse document frequencies from docs
func (t *TFIDF) Fit(docs []string) {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, tok := range narration.Tokens(doc) {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	index := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(docs))
	for i, term := range terms {
		index[term] = i
		idf[i] = 1 + math.Log(n/float64(1+df[term]))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.terms = terms
	t.index = index
	t.idf = idf
	t.docs = len(docs)
}

// Name returns the provider name
func (t *TFIDF) Name() string { return ProviderTFIDF }

// Dimension returns the vocabulary size
func (t *TFIDF) Dimension() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.terms)
}

// Vocabulary returns the fitted terms in vector order
func (t *TFIDF) Vocabulary() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.terms...)
}

// Sparse returns the term weights of text
func (t *TFIDF) Sparse(text string) similarity.SparseVector {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v := make(similarity.SparseVector)
	for _, tok := range narration.Tokens(text) {
		if i, ok := t.index[tok]; ok {
			v[tok] += t.idf[i]
		}
	}
	return v
}

// Embed projects the sparse weights of text onto the fitted vocabulary
func (t *TFIDF) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	fitted := t.docs > 0
	t.mu.RUnlock()
	if !fitted {
		return nil, fmt.Errorf("%w: tfidf vocabulary has not been fitted", ErrUnavailable)
	}
	return t.Sparse(text).Dense(t.Vocabulary()), nil
}
