package matcher

import (
	"context"
	stderrors "errors"
	"fmt"

	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/internal/narration"
	"semantic-reconciliation-service/internal/similarity"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// Matching phases reported to a ProgressFunc
const (
	PhaseTargets = "targets"
	PhaseSources = "sources"
)

// targetBatchSize bounds one batched embedding request
const targetBatchSize = 128

// ProgressFunc receives the position within a phase
type ProgressFunc func(phase string, done, total int)

// Option configures a MatchingEngine
type Option func(*MatchingEngine)

// WithProgress registers a progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(me *MatchingEngine) {
		me.progress = fn
	}
}

// WithLogger sets the engine's debug logger
func WithLogger(log logger.Logger) Option {
	return func(me *MatchingEngine) {
		me.log = log
	}
}

// MatchingEngine reconciles source records against target records.
// An engine holds no per-run state and may be shared between goroutines.
type MatchingEngine struct {
	config   *MatchingConfig
	provider embedding.Provider
	progress ProgressFunc
	log      logger.Logger
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig, provider embedding.Provider, opts ...Option) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	me := &MatchingEngine{
		config:   config.Clone(),
		provider: provider,
		log:      logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(me)
	}
	me.log = me.log.WithComponent("matcher")
	return me
}

// Match runs one greedy, one-to-one matching pass.
//
// Sources are taken in input order. Each scans the unconsumed targets with an
// exactly equal amount, in input order, skipping any whose date is outside the
// tolerance. The highest cosine similarity wins; a later candidate replaces
// the current best only with a strictly greater score that clears the floor,
// so ties keep the earlier target. The winner is consumed.
//
// Any embedding failure aborts the run with no report.
func (me *MatchingEngine) Match(ctx context.Context, sources []models.SourceRecord, targets []models.TargetRecord) (*MatchingReport, error) {
	if me.provider == nil {
		return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "setup",
			errors.EmbeddingError(errors.CodeEmbeddingUnavailable, "none", embedding.ErrUnavailable))
	}
	if err := me.config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", me.config.String(), err)
	}

	cfg := me.config
	p := newPool(targets)

	if err := me.prepareTargets(ctx, p); err != nil {
		return nil, err
	}

	report := NewMatchingReport()
	matchedSources := make([]bool, len(sources))

	for si := range sources {
		if err := ctx.Err(); err != nil {
			return nil, errors.ReconciliationError(errors.CodeCancelled, "source matching", err)
		}

		src := &sources[si]
		vec, err := me.provider.Embed(ctx, narration.Extract(src.Details))
		if err != nil {
			return nil, me.fail("source embedding", err)
		}

		best := -1
		bestScore := 0.0
		for _, ti := range p.scan(src.Amount, cfg.UseAmountIndex) {
			c := p.entries[ti]
			if c.consumed {
				continue
			}
			if !c.record.Amount.Equal(src.Amount) {
				continue
			}
			if !cfg.IsWithinDateTolerance(src.Date, c.record.Date) {
				continue
			}

			score, err := similarity.Cosine(vec, c.vector)
			if err != nil {
				return nil, me.fail("similarity scoring", err)
			}
			if (best < 0 || score > bestScore) && cfg.Accepts(score) {
				best = ti
				bestScore = score
			}
		}

		if best >= 0 {
			c := p.entries[best]
			p.consume(best)
			matchedSources[si] = true
			report.Matched = append(report.Matched, MatchResult{
				SourceID:     src.ItemID,
				TargetID:     c.record.ItemID,
				Score:        bestScore,
				SourceRecord: *src,
				TargetRecord: *c.record,
				SourceIndex:  si,
				TargetIndex:  c.index,
			})
		}

		me.report(PhaseSources, si+1, len(sources))
	}

	for si, matched := range matchedSources {
		if !matched {
			report.UnmatchedSource = append(report.UnmatchedSource, sources[si])
		}
	}
	report.UnmatchedTarget = p.unconsumed()

	me.log.WithFields(logger.Fields{
		"sources":          len(sources),
		"targets":          len(targets),
		"matched":          len(report.Matched),
		"unmatched_source": len(report.UnmatchedSource),
		"unmatched_target": len(report.UnmatchedTarget),
	}).Debug("Matching pass finished")

	return report, nil
}

// prepareTargets extracts and embeds every target narration exactly once
func (me *MatchingEngine) prepareTargets(ctx context.Context, p *pool) error {
	for _, c := range p.entries {
		c.narration = narration.Extract(c.record.Details)
	}

	bp, batched := me.provider.(embedding.BatchProvider)
	total := len(p.entries)

	for start := 0; start < total; {
		if err := ctx.Err(); err != nil {
			return errors.ReconciliationError(errors.CodeCancelled, "target embedding", err)
		}

		if !batched {
			c := p.entries[start]
			vec, err := me.provider.Embed(ctx, c.narration)
			if err != nil {
				return me.fail("target embedding", err)
			}
			c.vector = vec
			start++
			me.report(PhaseTargets, start, total)
			continue
		}

		end := start + targetBatchSize
		if end > total {
			end = total
		}

		batch := p.entries[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.narration
		}
		vectors, err := bp.EmbedBatch(ctx, texts)
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("batch returned %d vectors for %d texts", len(vectors), len(texts))
		}
		if err != nil {
			return me.fail("target embedding", err)
		}
		for i, c := range batch {
			c.vector = vectors[i]
		}

		start = end
		me.report(PhaseTargets, start, total)
	}
	return nil
}

func (me *MatchingEngine) fail(operation string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ReconciliationError(errors.CodeCancelled, operation, err)
	}

	var cause *errors.ReconcilerError
	if stderrors.Is(err, similarity.ErrDimensionMismatch) {
		cause = errors.EmbeddingError(errors.CodeDimensionMismatch, me.provider.Name(), err)
	} else {
		if !stderrors.Is(err, embedding.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", embedding.ErrUnavailable, err)
		}
		cause = errors.EmbeddingError(errors.CodeEmbeddingUnavailable, me.provider.Name(), err)
	}
	return errors.ReconciliationError(errors.CodeMatchingFailed, operation, cause)
}

func (me *MatchingEngine) report(phase string, done, total int) {
	if me.progress != nil {
		me.progress(phase, done, total)
	}
}

// ValidateConfiguration validates the current engine configuration
func (me *MatchingEngine) ValidateConfiguration() error {
	return me.config.Validate()
}

// GetConfiguration returns a copy of the current configuration
func (me *MatchingEngine) GetConfiguration() *MatchingConfig {
	return me.config.Clone()
}

// Provider returns the embedding provider the engine was built with
func (me *MatchingEngine) Provider() embedding.Provider {
	return me.provider
}

// WithConfig returns an engine sharing the provider and options but using config
func (me *MatchingEngine) WithConfig(config *MatchingConfig) (*MatchingEngine, error) {
	if config == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	clone := *me
	clone.config = config.Clone()
	return &clone, nil
}
