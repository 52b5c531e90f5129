package reconciler

import (
	"github.com/shopspring/decimal"

	"semantic-reconciliation-service/internal/matcher"
	"semantic-reconciliation-service/internal/models"
)

// Summary provides a high-level overview of one matching report
type Summary struct {
	TotalSource     int `json:"totalSource"`
	TotalTarget     int `json:"totalTarget"`
	Matched         int `json:"matched"`
	UnmatchedSource int `json:"unmatchedSource"`
	UnmatchedTarget int `json:"unmatchedTarget"`

	MatchedAmount         decimal.Decimal `json:"matchedAmount"`
	UnmatchedSourceAmount decimal.Decimal `json:"unmatchedSourceAmount"`
	UnmatchedTargetAmount decimal.Decimal `json:"unmatchedTargetAmount"`

	MatchRate    float64 `json:"matchRate"`
	AverageScore float64 `json:"averageScore"`

	StrongMatches   int `json:"strongMatches"`
	ModerateMatches int `json:"moderateMatches"`
	WeakMatches     int `json:"weakMatches"`
}

// NewSummary computes the summary of a report. Amounts are source-side sums.
func NewSummary(report *matcher.MatchingReport) *Summary {
	s := &Summary{
		Matched:               len(report.Matched),
		UnmatchedSource:       len(report.UnmatchedSource),
		UnmatchedTarget:       len(report.UnmatchedTarget),
		MatchedAmount:         decimal.Zero,
		UnmatchedSourceAmount: models.SumSourceAmounts(report.UnmatchedSource),
		UnmatchedTargetAmount: models.SumTargetAmounts(report.UnmatchedTarget),
		MatchRate:             report.MatchRate(),
	}
	s.TotalSource = s.Matched + s.UnmatchedSource
	s.TotalTarget = s.Matched + s.UnmatchedTarget

	var scoreSum float64
	for _, m := range report.Matched {
		s.MatchedAmount = s.MatchedAmount.Add(m.SourceRecord.Amount)
		scoreSum += m.Score

		switch m.Strength() {
		case matcher.MatchStrong:
			s.StrongMatches++
		case matcher.MatchModerate:
			s.ModerateMatches++
		default:
			s.WeakMatches++
		}
	}
	if s.Matched > 0 {
		s.AverageScore = scoreSum / float64(s.Matched)
	}

	return s
}

// Balanced reports whether nothing was left unmatched on either side
func (s *Summary) Balanced() bool {
	return s.UnmatchedSource == 0 && s.UnmatchedTarget == 0
}
