package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no embedding model is configured
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAI embeds text with the OpenAI embeddings endpoint, or any
// OpenAI-compatible server when a base URL is given.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewOpenAI creates an OpenAI embedding provider
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai api key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dim := cfg.Dimensions
	if dim == 0 && cfg.Model == DefaultOpenAIModel {
		dim = 1536
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(cfg.Model),
		dim:    dim,
	}, nil
}

// Name returns the provider name
func (o *OpenAI) Name() string { return ProviderOpenAI }

// Dimension returns the configured vector width
func (o *OpenAI) Dimension() int { return o.dim }

// Embed returns the embedding of text
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one request
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: nonEmpty(texts),
		Model: o.model,
	}
	if o.dim > 0 && o.model != openai.AdaEmbeddingV2 {
		req.Dimensions = o.dim
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errBatchLength(len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}
