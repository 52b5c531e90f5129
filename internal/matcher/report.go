package matcher

import (
	"fmt"

	"semantic-reconciliation-service/internal/models"
)

// MatchResult pairs one source with the target it consumed
type MatchResult struct {
	SourceID     string              `json:"sourceId"`
	TargetID     string              `json:"targetId"`
	Score        float64             `json:"score"`
	SourceRecord models.SourceRecord `json:"sourceRecord"`
	TargetRecord models.TargetRecord `json:"targetRecord"`
	SourceIndex  int                 `json:"sourceIndex"`
	TargetIndex  int                 `json:"targetIndex"`
}

// Strength classifies the score of the match
func (m MatchResult) Strength() MatchStrength {
	return StrengthOf(m.Score)
}

// DayGap is the number of days between the two dates, or -1 if either does not parse
func (m MatchResult) DayGap() int {
	a, err := models.ParseDate(m.SourceRecord.Date)
	if err != nil {
		return -1
	}
	b, err := models.ParseDate(m.TargetRecord.Date)
	if err != nil {
		return -1
	}
	return models.DayDifference(a, b)
}

// MatchingReport is the outcome of one run. Matched is in source input order;
// UnmatchedTarget keeps target input order.
type MatchingReport struct {
	Matched         []MatchResult         `json:"matched"`
	UnmatchedSource []models.SourceRecord `json:"unmatchedSource"`
	UnmatchedTarget []models.TargetRecord `json:"unmatchedTarget"`
}

// NewMatchingReport returns an empty report whose slices encode as []
func NewMatchingReport() *MatchingReport {
	return &MatchingReport{
		Matched:         []MatchResult{},
		UnmatchedSource: []models.SourceRecord{},
		UnmatchedTarget: []models.TargetRecord{},
	}
}

// CheckConservation verifies that every input record is accounted for exactly once
func (r *MatchingReport) CheckConservation(sources, targets int) error {
	if got := len(r.Matched) + len(r.UnmatchedSource); got != sources {
		return fmt.Errorf("report accounts for %d of %d sources", got, sources)
	}
	if got := len(r.Matched) + len(r.UnmatchedTarget); got != targets {
		return fmt.Errorf("report accounts for %d of %d targets", got, targets)
	}

	seen := make(map[int]bool, len(r.Matched))
	for _, m := range r.Matched {
		if seen[m.TargetIndex] {
			return fmt.Errorf("target %d matched more than once", m.TargetIndex)
		}
		seen[m.TargetIndex] = true
	}
	return nil
}

// MatchRate is the share of sources that found a target, 0 when there are none
func (r *MatchingReport) MatchRate() float64 {
	total := len(r.Matched) + len(r.UnmatchedSource)
	if total == 0 {
		return 0
	}
	return float64(len(r.Matched)) / float64(total)
}
