package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"semantic-reconciliation-service/internal/api"
	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/reporter"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("failed to read config: %v", err)
		}
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if cfg.Log.Level != logger.InfoLevel {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
	if cfg.Embedding.Provider != embedding.ProviderOpenAI {
		t.Errorf("expected openai provider, got %s", cfg.Embedding.Provider)
	}
	if cfg.Server.Port != 3005 {
		t.Errorf("expected port 3005, got %d", cfg.Server.Port)
	}
	if cfg.PDF.URL != "http://localhost:5003/convert" {
		t.Errorf("unexpected pdf url %s", cfg.PDF.URL)
	}
	if cfg.PDF.Timeout != 60*time.Second {
		t.Errorf("expected 60s pdf timeout, got %v", cfg.PDF.Timeout)
	}
	if cfg.Converter.Model != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", cfg.Converter.Model)
	}
	if cfg.Converter.ChunkSize != 20 {
		t.Errorf("expected chunk size 20, got %d", cfg.Converter.ChunkSize)
	}
	if cfg.Report.Format != reporter.FormatConsole {
		t.Errorf("expected console format, got %s", cfg.Report.Format)
	}

	mc := cfg.MatchingConfig()
	if mc.DateToleranceDays != 5 {
		t.Errorf("expected 5 day tolerance, got %d", mc.DateToleranceDays)
	}
	if mc.MinSimilarityScore != 0.25 {
		t.Errorf("expected 0.25 floor, got %f", mc.MinSimilarityScore)
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
log:
  level: DEBUG
  format: json
embedding:
  provider: hashing
  dimensions: 256
matching:
  date_tolerance_days: 2
  min_similarity_score: 0.6
reconciler:
  strict: true
  progress_interval: 500ms
converter:
  provider: anthropic
  model: claude-3-5-haiku-latest
  chunk_size: 10
pdf:
  mode: local
server:
  port: 8080
  allowed_origins: "https://a.example,https://b.example"
report:
  format: yml
  max_items: 10
`
	cfg, err := Load(newViper(t, yaml))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Log.Level != logger.DebugLevel {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	if cfg.Embedding.Dimensions != 256 {
		t.Errorf("expected 256 dimensions, got %d", cfg.Embedding.Dimensions)
	}

	mc := cfg.MatchingConfig()
	if mc.DateToleranceDays != 2 || mc.MinSimilarityScore != 0.6 {
		t.Errorf("matching overrides not applied: %+v", mc)
	}

	rc := cfg.ReconcilerConfig()
	if rc.ProgressInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms progress interval, got %v", rc.ProgressInterval)
	}
	if !cfg.LoaderConfig().Strict {
		t.Error("expected strict loader")
	}

	if cfg.Converter.Provider != "anthropic" || cfg.Converter.ChunkSize != 10 {
		t.Errorf("converter settings not applied: %+v", cfg.Converter)
	}

	sc := cfg.ServerConfig()
	if sc.Port != 8080 {
		t.Errorf("expected port 8080, got %d", sc.Port)
	}
	if sc.PDFMode != api.PDFModeLocal {
		t.Errorf("expected pdf mode from pdf section, got %s", sc.PDFMode)
	}
	if len(sc.AllowedOrigins) != 2 {
		t.Errorf("expected 2 allowed origins, got %v", sc.AllowedOrigins)
	}

	if cfg.Report.Format != reporter.FormatYAML {
		t.Errorf("expected yml to map to yaml, got %s", cfg.Report.Format)
	}
	if rep := cfg.ReportConfig(""); rep.MaxItems != 10 || rep.UseColors {
		t.Errorf("unexpected report config: %+v", rep)
	}
}

func TestMatchingConfigFollowsProvider(t *testing.T) {
	cfg, err := Load(newViper(t, "embedding:\n  provider: tfidf\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if got := cfg.MatchingConfig().MinSimilarityScore; got != 0.45 {
		t.Errorf("expected lexical floor 0.45, got %f", got)
	}

	score := 0.3
	cfg.Matching.MinSimilarityScore = &score
	if got := cfg.MatchingConfig().MinSimilarityScore; got != 0.3 {
		t.Errorf("expected explicit floor to win, got %f", got)
	}
}

func TestBindEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("EXTERNAL_CONVERT_URL", "http://converter:5003/convert")
	t.Setenv("RECONCILER_EMBEDDING_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "gm-test")

	cfg, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Converter.APIKey != "sk-test" {
		t.Errorf("expected converter key from OPENAI_API_KEY, got %q", cfg.Converter.APIKey)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("expected embedding key from OPENAI_API_KEY, got %q", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.GeminiAPIKey != "gm-test" {
		t.Errorf("expected gemini key, got %q", cfg.Embedding.GeminiAPIKey)
	}
	if cfg.Embedding.Provider != embedding.ProviderGemini {
		t.Errorf("expected gemini provider, got %s", cfg.Embedding.Provider)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.PDF.URL != "http://converter:5003/convert" {
		t.Errorf("unexpected pdf url %s", cfg.PDF.URL)
	}
}

func TestBindEnvPrefixedWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-plain")
	t.Setenv("RECONCILER_CONVERTER_API_KEY", "sk-prefixed")

	cfg, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Converter.APIKey != "sk-prefixed" {
		t.Errorf("expected prefixed variable to win, got %q", cfg.Converter.APIKey)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		setting string
	}{
		{"unknown log level", "log:\n  level: loud\n", "log"},
		{"unknown provider", "embedding:\n  provider: word2vec\n", "embedding.provider"},
		{"negative tolerance", "matching:\n  date_tolerance_days: -1\n", "matching"},
		{"score out of range", "matching:\n  min_similarity_score: 1.5\n", "matching"},
		{"unknown converter", "converter:\n  provider: llama\n", "converter.provider"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad pdf mode", "pdf:\n  mode: ocr\n", "server.pdf_mode"},
		{"bad report format", "report:\n  format: html\n", "report.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error but got none")
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %T", err)
			}
			if rerr.Category != errors.CategoryConfiguration {
				t.Errorf("expected configuration error, got %s", rerr.Category)
			}
			if rerr.Context["setting"] != tt.setting {
				t.Errorf("expected setting %q, got %v", tt.setting, rerr.Context["setting"])
			}
		})
	}
}

func TestConverterOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	prompts := "[convert]\nsystem = \"Custom system prompt\"\n"
	if err := afero.WriteFile(fs, "/prompts.toml", []byte(prompts), 0o644); err != nil {
		t.Fatalf("failed to write prompts: %v", err)
	}

	cfg, err := Load(newViper(t, "converter:\n  prompts_file: /prompts.toml\n  max_concurrency: 2\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	opts, err := cfg.ConverterOptions(fs, logger.Discard())
	if err != nil {
		t.Fatalf("failed to build options: %v", err)
	}
	if opts.MaxConcurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", opts.MaxConcurrency)
	}
	if opts.Prompts == nil || opts.Prompts.Convert.System != "Custom system prompt" {
		t.Errorf("prompts file not applied: %+v", opts.Prompts)
	}

	cfg.Converter.PromptsFile = "/missing.toml"
	if _, err := cfg.ConverterOptions(fs, logger.Discard()); err == nil {
		t.Error("expected error for missing prompts file")
	}
}
