package converter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// Options tunes a Converter
type Options struct {
	ChunkSize      int      `mapstructure:"chunk_size"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	Prompts        *Prompts `mapstructure:"-"`
	Logger         logger.Logger
}

// DefaultOptions returns chunks of 20 rows, four in flight
func DefaultOptions() Options {
	return Options{ChunkSize: 20, MaxConcurrency: 4}
}

// ChunkFailure records one chunk the model could not convert
type ChunkFailure struct {
	Index int    `json:"index"`
	Rows  int    `json:"rows"`
	Error string `json:"error"`
}

// ConversionStats describes one Convert call
type ConversionStats struct {
	InputRows    int            `json:"inputRows"`
	Chunks       int            `json:"chunks"`
	Records      int            `json:"records"`
	GeneratedIDs int            `json:"generatedIds"`
	Failures     []ChunkFailure `json:"failures,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Partial reports whether some, but not all, chunks failed
func (s *ConversionStats) Partial() bool {
	return len(s.Failures) > 0 && len(s.Failures) < s.Chunks
}

// Converter turns unstructured rows into target records through a Completer
type Converter struct {
	completer Completer
	opts      Options
	log       logger.Logger
}

// New creates a Converter
func New(completer Completer, opts Options) *Converter {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.Prompts == nil {
		opts.Prompts = DefaultPrompts()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Converter{
		completer: completer,
		opts:      opts,
		log:       log.WithComponent("converter"),
	}
}

// ValidateRows checks the converter input: a non-empty list of objects
func ValidateRows(rows []interface{}) ([]map[string]interface{}, error) {
	if len(rows) == 0 {
		return nil, errors.EmptyCollectionError("Data")
	}
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			return nil, errors.NotAnObjectError("Data", i)
		}
		out[i] = obj
	}
	return out, nil
}

// Convert splits rows into chunks, converts the chunks concurrently and
// returns the records in chunk order. It fails only when every chunk failed;
// otherwise failed chunks are listed in the stats.
func (c *Converter) Convert(ctx context.Context, rows []map[string]interface{}) ([]models.TargetRecord, *ConversionStats, error) {
	start := time.Now()
	chunks := chunkRows(rows, c.opts.ChunkSize)
	stats := &ConversionStats{InputRows: len(rows), Chunks: len(chunks)}

	if len(rows) == 0 {
		return nil, stats, errors.EmptyCollectionError("Data")
	}

	log := c.log.WithFields(logger.Fields{
		"provider": c.completer.Name(),
		"rows":     len(rows),
		"chunks":   len(chunks),
	})
	log.Info("Converting unstructured rows")

	results := make([][]map[string]interface{}, len(chunks))
	failures := make([]error, len(chunks))

	p := pool.New().WithMaxGoroutines(c.opts.MaxConcurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		p.Go(func() {
			results[i], failures[i] = c.convertChunk(ctx, chunk, i, len(chunks))
		})
	}
	p.Wait()

	var combined error
	var records []models.TargetRecord
	for i := range chunks {
		if failures[i] != nil {
			combined = multierr.Append(combined, failures[i])
			stats.Failures = append(stats.Failures, ChunkFailure{Index: i, Rows: len(chunks[i]), Error: failures[i].Error()})
			log.WithError(failures[i]).WithField("chunk", i+1).Warn("Chunk conversion failed")
			continue
		}
		for _, obj := range results[i] {
			record, generated := cleanRecord(obj)
			if generated {
				stats.GeneratedIDs++
			}
			records = append(records, record)
		}
	}

	stats.Records = len(records)
	stats.Duration = time.Since(start)

	if len(stats.Failures) == len(chunks) {
		return nil, stats, errors.ConversionError(errors.CodeConversionFailed, c.completer.Name(), combined)
	}

	log.WithFields(logger.Fields{
		"records":       stats.Records,
		"failed_chunks": len(stats.Failures),
		"generated_ids": stats.GeneratedIDs,
		"duration_ms":   stats.Duration.Milliseconds(),
	}).Info("Conversion finished")

	return records, stats, nil
}

func (c *Converter) convertChunk(ctx context.Context, chunk []map[string]interface{}, index, total int) ([]map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chunk %d/%d: %w", index+1, total, err)
	}

	payload, err := json.MarshalIndent(chunk, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("chunk %d/%d: %w", index+1, total, err)
	}

	reply, err := c.completer.Complete(ctx, c.opts.Prompts.Convert.System, c.opts.Prompts.ConvertUser(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("chunk %d/%d: %w", index+1, total, err)
	}

	objs, err := ParseResponse(reply)
	if err != nil {
		return nil, fmt.Errorf("chunk %d/%d: %w", index+1, total, err)
	}
	return objs, nil
}

func chunkRows(rows []map[string]interface{}, size int) [][]map[string]interface{} {
	var chunks [][]map[string]interface{}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
