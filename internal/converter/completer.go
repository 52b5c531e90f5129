// Package converter turns unstructured transaction rows into target records.
//
// Rows (spreadsheet lines, PDF text lines, anything JSON-shaped) are sent in
// chunks to a chat model with a fixed transformation prompt. Each reply is
// parsed leniently, cleaned and normalized into models.TargetRecord values:
//
//	completer, err := converter.NewCompleter(ctx, cfg)
//	conv := converter.New(completer, converter.DefaultOptions())
//	records, stats, err := conv.Convert(ctx, rows)
//
// PDF statements reach the converter either through an external conversion
// service (Forwarder) or through local text extraction (ExtractPDFRows).
package converter

import (
	"context"
	"fmt"
	"strings"

	"semantic-reconciliation-service/pkg/errors"
)

// Completer sends one system and user prompt pair to a chat model and returns the reply text
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Supported chat providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and configures the chat model used for conversion
type Config struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DefaultConfig returns the OpenAI defaults
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   4096,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unknown converter provider %q", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2: %f", c.Temperature)
	}
	return nil
}

// NewCompleter builds the Completer named by cfg.Provider
func NewCompleter(ctx context.Context, cfg Config) (Completer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "converter.provider", cfg.Provider, err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "converter.api_key", "",
			fmt.Errorf("%s API key is not configured", cfg.Provider))
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicCompleter(cfg), nil
	case ProviderGemini:
		return NewGeminiCompleter(ctx, cfg)
	default:
		return NewOpenAICompleter(cfg), nil
	}
}
