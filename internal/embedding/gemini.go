package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no embedding model is configured
const DefaultGeminiModel = "text-embedding-004"

// Gemini embeds text with the Google Generative AI embedding models
type Gemini struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

// NewGemini creates a Gemini embedding provider. Close releases the client.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeSemanticSimilarity

	return &Gemini{client: client, model: em}, nil
}

// Name returns the provider name
func (g *Gemini) Name() string { return ProviderGemini }

// Dimension returns the width of text-embedding-004 vectors
func (g *Gemini) Dimension() int { return 768 }

// Embed returns the embedding of text
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.model.EmbedContent(ctx, genai.Text(nonEmpty([]string{text})[0]))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding values")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds all texts in one request
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := g.model.NewBatch()
	for _, t := range nonEmpty(texts) {
		batch.AddContent(genai.Text(t))
	}

	res, err := g.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, errBatchLength(len(texts), len(res.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("no embedding values for text %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// Close releases the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}
