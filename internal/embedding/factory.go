package embedding

import (
	"context"
	"fmt"
	"strings"

	"semantic-reconciliation-service/pkg/logger"
)

// Config selects and configures an embedding provider
type Config struct {
	Provider     string  `mapstructure:"provider" json:"provider"`
	Model        string  `mapstructure:"model" json:"model"`
	APIKey       string  `mapstructure:"api_key" json:"-"`
	BaseURL      string  `mapstructure:"base_url" json:"base_url,omitempty"`
	Dimensions   int     `mapstructure:"dimensions" json:"dimensions,omitempty"`
	RateLimit    float64 `mapstructure:"rate_limit" json:"rate_limit"`
	Burst        int     `mapstructure:"burst" json:"burst"`
	CacheSize    int     `mapstructure:"cache_size" json:"cache_size"`
	GeminiAPIKey string  `mapstructure:"gemini_api_key" json:"-"`
}

// DefaultConfig returns the default provider configuration
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderOpenAI,
		Model:     DefaultOpenAIModel,
		RateLimit: 20,
		Burst:     5,
		CacheSize: 50000,
	}
}

// Validate checks the provider name
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderOpenAI, ProviderGemini, ProviderHashing, ProviderTFIDF:
	default:
		return fmt.Errorf("unknown embedding provider %q (expected openai, gemini, hashing or tfidf)", c.Provider)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("embedding rate limit cannot be negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("embedding cache size cannot be negative")
	}
	return nil
}

// New builds the provider named in cfg. Remote providers are wrapped in a
// Lazy, so credentials and connectivity are only checked on first use.
// The tfidf provider is returned unfitted; see ForRun.
func New(cfg Config, log logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	lazyOpts := []LazyOption{WithLogger(log), WithCacheSize(cfg.CacheSize)}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "text-embedding-0") {
			model = DefaultOpenAIModel
		}
		lazyOpts = append(lazyOpts, WithRateLimit(cfg.RateLimit, cfg.Burst))
		return NewLazy(ProviderOpenAI, func(ctx context.Context) (Provider, error) {
			return NewOpenAI(OpenAIConfig{
				APIKey:     cfg.APIKey,
				Model:      model,
				BaseURL:    cfg.BaseURL,
				Dimensions: cfg.Dimensions,
			})
		}, lazyOpts...), nil

	case ProviderGemini:
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "text-embedding-3") {
			model = DefaultGeminiModel
		}
		lazyOpts = append(lazyOpts, WithRateLimit(cfg.RateLimit, cfg.Burst))
		return NewLazy(ProviderGemini, func(ctx context.Context) (Provider, error) {
			key := cfg.GeminiAPIKey
			if key == "" {
				key = cfg.APIKey
			}
			return NewGemini(ctx, key, model)
		}, lazyOpts...), nil

	case ProviderHashing:
		dim := cfg.Dimensions
		return NewLazy(ProviderHashing, func(ctx context.Context) (Provider, error) {
			return NewHashing(dim), nil
		}, lazyOpts...), nil

	default:
		return NewTFIDF(), nil
	}
}

// ForRun returns the provider to use for one run whose narrations are docs.
// Vocabulary-based providers are fitted afresh; others are returned as is.
func ForRun(p Provider, docs []string) Provider {
	if _, ok := p.(*TFIDF); ok {
		return FitTFIDF(docs)
	}
	return p
}

// StatsOf returns the counters of p when it tracks them
func StatsOf(p Provider) (Stats, bool) {
	if l, ok := p.(*Lazy); ok {
		return l.Stats(), true
	}
	return Stats{}, false
}
