// Package matcher provides the semantic matching engine and its configuration.
//
// The engine reconciles a source collection (record1) against a target
// collection (record2). A source may only match a target with exactly the same
// amount, a date within the configured tolerance, and narrations whose
// embeddings are similar enough:
//   - Amounts are compared with decimal equality, never with a tolerance
//   - Dates are compared in whole days, rounded up
//   - Similarity is the cosine of the two narration embeddings
//
// Matching is greedy and one-to-one:
//  1. Every target narration is extracted and embedded once
//  2. Sources are processed in input order
//  3. Each source takes the best eligible target not yet consumed
//  4. Whatever is left on either side is reported as unmatched
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateToleranceDays = 3
//
//	engine := matcher.NewMatchingEngine(config, provider)
//	report, err := engine.Match(ctx, sources, targets)
package matcher

import (
	"fmt"

	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/models"
)

// Default thresholds
const (
	DefaultMinSimilarityScore = 0.25
	LexicalMinSimilarityScore = 0.45
)

// MatchStrength buckets a similarity score for people reviewing a report.
// It has no effect on which pairs are matched.
type MatchStrength int

const (
	// MatchStrong means the narrations are near paraphrases
	MatchStrong MatchStrength = iota

	// MatchModerate means the narrations share the payee or purpose
	MatchModerate

	// MatchWeak means the pair cleared the floor on amount and date evidence
	// with little narration overlap; these deserve a manual look
	MatchWeak
)

// String returns the string representation of MatchStrength
func (ms MatchStrength) String() string {
	switch ms {
	case MatchStrong:
		return "Strong"
	case MatchModerate:
		return "Moderate"
	case MatchWeak:
		return "Weak"
	default:
		return "Unknown"
	}
}

// StrengthOf classifies a similarity score
func StrengthOf(score float64) MatchStrength {
	switch {
	case score >= 0.75:
		return MatchStrong
	case score >= 0.5:
		return MatchModerate
	default:
		return MatchWeak
	}
}

// MatchingConfig holds the thresholds of one matching run.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): 5 day window, 0.25 similarity floor
//   - StrictMatchingConfig(): 2 day window, 0.5 similarity floor
//   - LexicalMatchingConfig(): floor tuned for TF-IDF vectors
type MatchingConfig struct {
	// DateToleranceDays is the widest accepted gap between the two dates, in days
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// MinSimilarityScore is the acceptance floor; a candidate scoring below it
	// is never selected even when it is the only eligible one
	MinSimilarityScore float64 `json:"min_similarity_score" mapstructure:"min_similarity_score"`

	// UseAmountIndex restricts each scan to targets with the same amount.
	// Results are identical either way; disabling it scans the whole pool.
	UseAmountIndex bool `json:"use_amount_index" mapstructure:"use_amount_index"`
}

// DefaultMatchingConfig returns a configuration with the standard thresholds
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:  models.DefaultDateToleranceDays,
		MinSimilarityScore: DefaultMinSimilarityScore,
		UseAmountIndex:     true,
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:  2,
		MinSimilarityScore: 0.5,
		UseAmountIndex:     true,
	}
}

// LexicalMatchingConfig returns a configuration for TF-IDF vectors, which
// score lower than semantic embeddings for the same pair
func LexicalMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:  models.DefaultDateToleranceDays,
		MinSimilarityScore: LexicalMinSimilarityScore,
		UseAmountIndex:     true,
	}
}

// ConfigForProvider returns the default configuration suited to a provider
func ConfigForProvider(name string) *MatchingConfig {
	if name == embedding.ProviderTFIDF {
		return LexicalMatchingConfig()
	}
	return DefaultMatchingConfig()
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", mc.DateToleranceDays)
	}

	if mc.DateToleranceDays > 366 {
		return fmt.Errorf("date tolerance days cannot exceed 366: %d", mc.DateToleranceDays)
	}

	if mc.MinSimilarityScore < -1.0 || mc.MinSimilarityScore > 1.0 {
		return fmt.Errorf("minimum similarity score must be between -1.0 and 1.0: %f", mc.MinSimilarityScore)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// IsWithinDateTolerance checks if two date strings are within the configured tolerance
func (mc *MatchingConfig) IsWithinDateTolerance(date1, date2 string) bool {
	return models.WithinDateTolerance(date1, date2, mc.DateToleranceDays)
}

// Accepts reports whether score clears the acceptance floor
func (mc *MatchingConfig) Accepts(score float64) bool {
	return score >= mc.MinSimilarityScore
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DateTolerance: %d days, MinSimilarity: %.2f, AmountIndex: %t}",
		mc.DateToleranceDays, mc.MinSimilarityScore, mc.UseAmountIndex)
}
