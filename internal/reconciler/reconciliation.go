// Package reconciler runs complete reconciliations: it loads or receives the
// two record collections, inspects them, fits the embedding provider to the
// run, drives the matching engine and summarizes the outcome.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/matcher"
	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/internal/narration"
	"semantic-reconciliation-service/internal/parsers"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// ReconciliationService orchestrates the complete reconciliation process
type ReconciliationService struct {
	provider embedding.Provider
	loader   *parsers.RecordLoader
	log      logger.Logger

	mu     sync.RWMutex
	config *Config
}

// Config holds configuration options for the reconciliation service
type Config struct {
	// Matching thresholds; nil picks the defaults for the provider
	Matching *matcher.MatchingConfig `mapstructure:"matching"`

	// Processing options
	ProgressReporting bool          `mapstructure:"progress"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval"`

	// Output options
	IncludeStatistics bool `mapstructure:"include_statistics"`
	InspectInputs     bool `mapstructure:"inspect_inputs"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		ProgressReporting: false,
		ProgressInterval:  2 * time.Second,
		IncludeStatistics: true,
		InspectInputs:     true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching != nil {
		if err := c.Matching.Validate(); err != nil {
			return err
		}
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative: %v", c.ProgressInterval)
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	if c.Matching != nil {
		clone.Matching = c.Matching.Clone()
	}
	return &clone
}

// FileRequest names the two record files of a reconciliation
type FileRequest struct {
	SourceFile string
	TargetFile string
}

// Validate validates the file request
func (r *FileRequest) Validate() error {
	if r.SourceFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "source file", nil, nil)
	}
	if r.TargetFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "target file", nil, nil)
	}
	return nil
}

// ReconciliationResult contains the complete results of one reconciliation
type ReconciliationResult struct {
	Report          *matcher.MatchingReport `json:"report"`
	Summary         *Summary                `json:"summary"`
	ProcessingStats *ProcessingStats        `json:"processingStats,omitempty"`
	Quality         *DataQuality            `json:"quality,omitempty"`
	ProcessedAt     time.Time               `json:"processedAt"`
}

// ProcessingStats contains detailed processing statistics
type ProcessingStats struct {
	Provider       string `json:"provider"`
	SourceRecords  int    `json:"sourceRecords"`
	TargetRecords  int    `json:"targetRecords"`
	SkippedSources int    `json:"skippedSources"`
	SkippedTargets int    `json:"skippedTargets"`

	RecordsPerSecond    float64       `json:"recordsPerSecond"`
	TotalProcessingTime time.Duration `json:"totalProcessingTime"`
	LoadingTime         time.Duration `json:"loadingTime"`
	MatchingTime        time.Duration `json:"matchingTime"`

	AmountIndex *matcher.AmountIndexStats `json:"amountIndex,omitempty"`
	Embedding   *embedding.Stats          `json:"embedding,omitempty"`
}

// NewReconciliationService creates a new reconciliation service. loader may
// be nil when the service only reconciles in-memory records.
func NewReconciliationService(provider embedding.Provider, loader *parsers.RecordLoader, config *Config, log logger.Logger) (*ReconciliationService, error) {
	if provider == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "embedding.provider", nil,
			fmt.Errorf("an embedding provider is required"))
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation", nil, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &ReconciliationService{
		provider: provider,
		loader:   loader,
		log:      log.WithComponent("reconciliation_service"),
		config:   config,
	}, nil
}

// Reconcile matches sources against targets and summarizes the outcome
func (rs *ReconciliationService) Reconcile(ctx context.Context, sources []models.SourceRecord, targets []models.TargetRecord) (*ReconciliationResult, error) {
	start := time.Now()
	config := rs.GetConfiguration()

	result, err := rs.reconcile(ctx, config, sources, targets)
	if err != nil {
		return nil, err
	}

	if result.ProcessingStats != nil {
		result.ProcessingStats.TotalProcessingTime = time.Since(start)
		result.ProcessingStats.RecordsPerSecond = perSecond(len(sources)+len(targets), result.ProcessingStats.TotalProcessingTime)
	}
	return result, nil
}

// ReconcileFiles loads both collections through the record loader and
// reconciles them. Records skipped by a lenient loader are counted in the
// processing statistics.
func (rs *ReconciliationService) ReconcileFiles(ctx context.Context, request *FileRequest) (*ReconciliationResult, error) {
	if rs.loader == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "record loader", nil,
			fmt.Errorf("service was created without a record loader"))
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	config := rs.GetConfiguration()

	op := logger.NewOperationLogger("reconcile_files", rs.log).WithFields(logger.Fields{
		"source_file": request.SourceFile,
		"target_file": request.TargetFile,
	})

	op.Step("load sources")
	sources, skippedSources, err := rs.loader.LoadSources(ctx, request.SourceFile)
	if err != nil {
		op.Error(err, "Failed to load sources")
		return nil, err
	}

	op.Step("load targets")
	targets, skippedTargets, err := rs.loader.LoadTargets(ctx, request.TargetFile)
	if err != nil {
		op.Error(err, "Failed to load targets")
		return nil, err
	}
	loadingTime := op.Elapsed()

	for _, skipped := range []*errors.ErrorSummary{skippedSources, skippedTargets} {
		if skipped != nil {
			op.Warning(fmt.Sprintf("Skipped %d invalid records", skipped.Total))
		}
	}

	result, err := rs.reconcile(ctx, config, sources, targets)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	if stats := result.ProcessingStats; stats != nil {
		stats.LoadingTime = loadingTime
		if skippedSources != nil {
			stats.SkippedSources = skippedSources.Total
		}
		if skippedTargets != nil {
			stats.SkippedTargets = skippedTargets.Total
		}
		stats.TotalProcessingTime = time.Since(start)
		stats.RecordsPerSecond = perSecond(len(sources)+len(targets), stats.TotalProcessingTime)
	}

	op.Success("Reconciliation completed")
	return result, nil
}

func (rs *ReconciliationService) reconcile(ctx context.Context, config *Config, sources []models.SourceRecord, targets []models.TargetRecord) (*ReconciliationResult, error) {
	result := &ReconciliationResult{ProcessedAt: time.Now()}

	if config.InspectInputs {
		result.Quality = InspectInputs(sources, targets)
		for _, w := range result.Quality.Warnings {
			rs.log.WithField("warning", w).Debug("Input inspection")
		}
	}

	provider := embedding.ForRun(rs.provider, narrations(sources, targets))

	matching := config.Matching
	if matching == nil {
		matching = matcher.ConfigForProvider(provider.Name())
	}

	opts := []matcher.Option{matcher.WithLogger(rs.log)}
	var tracker *logger.ProgressTracker
	if config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation:   "matching",
			Total:       int64(len(sources)),
			LogInterval: config.ProgressInterval,
			Logger:      rs.log,
		})
		opts = append(opts, matcher.WithProgress(tracker.Observe))
	}

	engine := matcher.NewMatchingEngine(matching, provider, opts...)

	var report *matcher.MatchingReport
	matchingStart := time.Now()
	err := logger.TimedOperation("matching", rs.log, func() error {
		var err error
		report, err = engine.Match(ctx, sources, targets)
		return err
	})
	matchingTime := time.Since(matchingStart)

	if tracker != nil {
		if err != nil {
			tracker.CompleteWithError(err)
		} else {
			tracker.Complete()
		}
	}
	if err != nil {
		return nil, err
	}

	if err := report.CheckConservation(len(sources), len(targets)); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "report check", err)
	}

	result.Report = report
	result.Summary = NewSummary(report)

	if config.IncludeStatistics {
		result.ProcessingStats = &ProcessingStats{
			Provider:      provider.Name(),
			SourceRecords: len(sources),
			TargetRecords: len(targets),
			MatchingTime:  matchingTime,
		}
		if matching.UseAmountIndex {
			stats := matcher.IndexStats(targets)
			result.ProcessingStats.AmountIndex = &stats
		}
		if stats, ok := embedding.StatsOf(rs.provider); ok {
			result.ProcessingStats.Embedding = &stats
		}
	}

	rs.log.WithFields(logger.Fields{
		"provider":   provider.Name(),
		"matched":    result.Summary.Matched,
		"match_rate": fmt.Sprintf("%.1f%%", report.MatchRate()*100),
	}).Info("Reconciliation finished")

	return result, nil
}

// narrations returns the run's documents for providers fitted per run
func narrations(sources []models.SourceRecord, targets []models.TargetRecord) []string {
	docs := make([]string, 0, len(sources)+len(targets))
	for _, t := range targets {
		docs = append(docs, narration.Extract(t.Details))
	}
	for _, s := range sources {
		docs = append(docs, narration.Extract(s.Details))
	}
	return docs
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// UpdateConfiguration replaces the service configuration. Runs already in
// progress keep the configuration they started with.
func (rs *ReconciliationService) UpdateConfiguration(config *Config) error {
	if err := config.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation", nil, err)
	}

	rs.mu.Lock()
	rs.config = config.Clone()
	rs.mu.Unlock()
	return nil
}

// GetConfiguration returns a copy of the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.config.Clone()
}

// Provider returns the embedding provider shared by all runs
func (rs *ReconciliationService) Provider() embedding.Provider {
	return rs.provider
}
