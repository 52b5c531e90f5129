package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"semantic-reconciliation-service/internal/api"
	"semantic-reconciliation-service/internal/converter"
	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/matcher"
	"semantic-reconciliation-service/internal/parsers"
	"semantic-reconciliation-service/internal/reconciler"
	"semantic-reconciliation-service/internal/reporter"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// EnvPrefix prefixes every environment variable read by the CLI
const EnvPrefix = "RECONCILER"

// AppConfig is the complete CLI and server configuration
type AppConfig struct {
	Log        logger.Config      `mapstructure:"log"`
	Embedding  embedding.Config   `mapstructure:"embedding"`
	Matching   MatchingOverrides  `mapstructure:"matching"`
	Reconciler ReconcilerSettings `mapstructure:"reconciler"`
	Converter  ConverterSettings  `mapstructure:"converter"`
	PDF        PDFSettings        `mapstructure:"pdf"`
	Server     api.Config         `mapstructure:"server"`
	Report     ReportSettings     `mapstructure:"report"`
}

// MatchingOverrides holds thresholds set explicitly by the user. Unset values
// fall back to the defaults of the embedding provider.
type MatchingOverrides struct {
	DateToleranceDays  *int     `mapstructure:"date_tolerance_days"`
	MinSimilarityScore *float64 `mapstructure:"min_similarity_score"`
	UseAmountIndex     *bool    `mapstructure:"use_amount_index"`
}

// ReconcilerSettings tunes the reconciliation service and the record loader
type ReconcilerSettings struct {
	Progress         bool          `mapstructure:"progress"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	InspectInputs    bool          `mapstructure:"inspect_inputs"`
	Strict           bool          `mapstructure:"strict"`
	Layout           string        `mapstructure:"layout"`
}

// ConverterSettings selects the chat model and chunking used for conversion
type ConverterSettings struct {
	converter.Config `mapstructure:",squash"`
	ChunkSize        int    `mapstructure:"chunk_size"`
	MaxConcurrency   int    `mapstructure:"max_concurrency"`
	PromptsFile      string `mapstructure:"prompts_file"`
}

// PDFSettings configures how uploaded statements become rows
type PDFSettings struct {
	Mode                      string `mapstructure:"mode"`
	converter.ForwarderConfig `mapstructure:",squash"`
}

// ReportSettings holds the report defaults
type ReportSettings struct {
	Format   reporter.OutputFormat `mapstructure:"format"`
	MaxItems int                   `mapstructure:"max_items"`
	Colors   bool                  `mapstructure:"colors"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	logDefaults := logger.DefaultConfig()
	v.SetDefault("log.level", string(logDefaults.Level))
	v.SetDefault("log.format", string(logDefaults.Format))
	v.SetDefault("log.output", string(logDefaults.Output))

	emb := embedding.DefaultConfig()
	v.SetDefault("embedding.provider", emb.Provider)
	v.SetDefault("embedding.model", emb.Model)
	v.SetDefault("embedding.rate_limit", emb.RateLimit)
	v.SetDefault("embedding.burst", emb.Burst)
	v.SetDefault("embedding.cache_size", emb.CacheSize)

	rec := reconciler.DefaultConfig()
	v.SetDefault("reconciler.progress", rec.ProgressReporting)
	v.SetDefault("reconciler.progress_interval", rec.ProgressInterval)
	v.SetDefault("reconciler.inspect_inputs", rec.InspectInputs)
	v.SetDefault("reconciler.strict", false)

	conv := converter.DefaultConfig()
	opts := converter.DefaultOptions()
	v.SetDefault("converter.provider", conv.Provider)
	v.SetDefault("converter.model", conv.Model)
	v.SetDefault("converter.temperature", conv.Temperature)
	v.SetDefault("converter.max_tokens", conv.MaxTokens)
	v.SetDefault("converter.chunk_size", opts.ChunkSize)
	v.SetDefault("converter.max_concurrency", opts.MaxConcurrency)

	fwd := converter.DefaultForwarderConfig()
	v.SetDefault("pdf.mode", api.PDFModeForward)
	v.SetDefault("pdf.url", fwd.URL)
	v.SetDefault("pdf.timeout", fwd.Timeout)
	v.SetDefault("pdf.retry_max", fwd.RetryMax)

	srv := api.DefaultConfig()
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.request_timeout", srv.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)

	rep := reporter.DefaultReportConfig()
	v.SetDefault("report.format", string(rep.Format))
	v.SetDefault("report.max_items", rep.MaxItems)
	v.SetDefault("report.colors", rep.UseColors)
}

// BindEnv enables RECONCILER_* variables and the plain variable names the
// service has always honoured (OPENAI_API_KEY, OPENAI_MODEL, PORT,
// EXTERNAL_CONVERT_URL)
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bind := func(key string, names ...string) {
		args := append([]string{key, envName(key)}, names...)
		_ = v.BindEnv(args...)
	}
	bind("converter.api_key", "OPENAI_API_KEY")
	bind("converter.model", "OPENAI_MODEL")
	bind("embedding.api_key", "OPENAI_API_KEY")
	bind("embedding.gemini_api_key", "GEMINI_API_KEY")
	bind("server.port", "PORT")
	bind("pdf.url", "EXTERNAL_CONVERT_URL")
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// DecodeHook converts strings from env and flags into durations, lists,
// log levels and report formats
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		lowerCaseHook(reflect.TypeOf(logger.Level("")), reflect.TypeOf(logger.Format("")), reflect.TypeOf(reporter.OutputFormat(""))),
	)
}

// lowerCaseHook normalizes string values decoded into the given named types
func lowerCaseHook(types ...reflect.Type) mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		for _, t := range types {
			if to == t {
				return strings.ToLower(strings.TrimSpace(data.(string))), nil
			}
		}
		return data, nil
	}
}

// Load decodes v into an AppConfig and validates it
func Load(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}
	if cfg.Report.Format == "yml" {
		cfg.Report.Format = reporter.FormatYAML
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *AppConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log.Level, err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "embedding.provider", c.Embedding.Provider, err)
	}
	if err := c.MatchingConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", nil, err)
	}
	if err := c.Converter.Config.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "converter.provider", c.Converter.Provider, err)
	}
	if c.Converter.ChunkSize < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "converter.chunk_size", c.Converter.ChunkSize, nil)
	}
	if err := c.ServerConfig().Validate(); err != nil {
		return err
	}
	if c.Report.Format != "" && !c.Report.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.format", c.Report.Format, nil).
			WithSuggestion(fmt.Sprintf("use one of %v", reporter.Formats()))
	}
	return nil
}

// MatchingConfig applies the overrides to the provider's default thresholds
func (c *AppConfig) MatchingConfig() *matcher.MatchingConfig {
	mc := matcher.ConfigForProvider(strings.ToLower(c.Embedding.Provider))
	if c.Matching.DateToleranceDays != nil {
		mc.DateToleranceDays = *c.Matching.DateToleranceDays
	}
	if c.Matching.MinSimilarityScore != nil {
		mc.MinSimilarityScore = *c.Matching.MinSimilarityScore
	}
	if c.Matching.UseAmountIndex != nil {
		mc.UseAmountIndex = *c.Matching.UseAmountIndex
	}
	return mc
}

// ReconcilerConfig builds the reconciliation service configuration
func (c *AppConfig) ReconcilerConfig() *reconciler.Config {
	rc := reconciler.DefaultConfig()
	rc.Matching = c.MatchingConfig()
	rc.ProgressReporting = c.Reconciler.Progress
	if c.Reconciler.ProgressInterval > 0 {
		rc.ProgressInterval = c.Reconciler.ProgressInterval
	}
	rc.InspectInputs = c.Reconciler.InspectInputs
	return rc
}

// LoaderConfig builds the record file loader configuration
func (c *AppConfig) LoaderConfig() *parsers.LoaderConfig {
	return &parsers.LoaderConfig{
		Strict: c.Reconciler.Strict,
		Layout: c.Reconciler.Layout,
	}
}

// ConverterOptions builds the converter options, reading the prompts file
// from fs when one is configured
func (c *AppConfig) ConverterOptions(fs afero.Fs, log logger.Logger) (converter.Options, error) {
	opts := converter.Options{
		ChunkSize:      c.Converter.ChunkSize,
		MaxConcurrency: c.Converter.MaxConcurrency,
		Logger:         log,
	}
	if c.Converter.PromptsFile != "" {
		prompts, err := converter.LoadPrompts(fs, c.Converter.PromptsFile)
		if err != nil {
			return opts, err
		}
		opts.Prompts = prompts
	}
	return opts, nil
}

// ForwarderConfig returns the external PDF conversion settings
func (c *AppConfig) ForwarderConfig() converter.ForwarderConfig {
	return c.PDF.ForwarderConfig
}

// ServerConfig returns the HTTP server settings with the PDF mode applied
func (c *AppConfig) ServerConfig() *api.Config {
	sc := c.Server
	if sc.PDFMode == "" {
		sc.PDFMode = c.PDF.Mode
	}
	if sc.PDFMode == "" {
		sc.PDFMode = api.PDFModeForward
	}
	return &sc
}

// ReportConfig builds the report configuration for format; an empty format
// uses the configured default
func (c *AppConfig) ReportConfig(format reporter.OutputFormat) *reporter.ReportConfig {
	rc := reporter.DefaultReportConfig()
	if format == "" {
		format = c.Report.Format
	}
	if format != "" {
		rc.Format = format
	}
	if c.Report.MaxItems > 0 {
		rc.MaxItems = c.Report.MaxItems
	}
	rc.UseColors = c.Report.Colors && rc.Format == reporter.FormatConsole
	return rc
}
