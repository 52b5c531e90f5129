package reconciler

import (
	"fmt"
	"strings"

	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/internal/narration"
)

// IssueType names a data quality finding
type IssueType string

const (
	IssueDuplicateID     IssueType = "duplicate_id"
	IssueUnparseableDate IssueType = "unparseable_date"
	IssueBlankNarration  IssueType = "blank_narration"
	IssueMissingID       IssueType = "missing_id"
)

// Issue is one data quality finding. Findings never change matching; they
// explain why a record is likely to stay unmatched.
type Issue struct {
	Type       IssueType `json:"type"`
	Collection string    `json:"collection"`
	Index      int       `json:"index"`
	ItemID     string    `json:"itemid,omitempty"`
	Detail     string    `json:"detail"`
}

// DataQuality describes the two input collections of a run
type DataQuality struct {
	SourceIssues int      `json:"sourceIssues"`
	TargetIssues int      `json:"targetIssues"`
	Issues       []Issue  `json:"issues,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// HasIssues reports whether any finding was recorded
func (q *DataQuality) HasIssues() bool {
	return len(q.Issues) > 0
}

// InspectInputs looks for records that cannot match or that are ambiguous:
// repeated item ids, dates that do not parse and narrations that reduce to
// nothing once reference noise is stripped.
func InspectInputs(sources []models.SourceRecord, targets []models.TargetRecord) *DataQuality {
	q := &DataQuality{}

	sourceBases := make([]models.SourceRecord, len(sources))
	copy(sourceBases, sources)
	q.SourceIssues = q.inspect("record1", sourceBases)

	targetBases := make([]models.SourceRecord, len(targets))
	for i, t := range targets {
		targetBases[i] = t.Base()
	}
	q.TargetIssues = q.inspect("record2", targetBases)

	if q.SourceIssues > 0 {
		q.Warnings = append(q.Warnings, fmt.Sprintf("%d data quality issues in source records", q.SourceIssues))
	}
	if q.TargetIssues > 0 {
		q.Warnings = append(q.Warnings, fmt.Sprintf("%d data quality issues in target records", q.TargetIssues))
	}
	return q
}

func (q *DataQuality) inspect(collection string, records []models.SourceRecord) int {
	seen := make(map[string]int, len(records))
	count := 0

	for i, r := range records {
		add := func(t IssueType, detail string) {
			q.Issues = append(q.Issues, Issue{Type: t, Collection: collection, Index: i, ItemID: r.ItemID, Detail: detail})
			count++
		}

		id := strings.TrimSpace(r.ItemID)
		if id == "" {
			add(IssueMissingID, "itemid is empty")
		} else if first, dup := seen[id]; dup {
			add(IssueDuplicateID, fmt.Sprintf("itemid also used by %s[%d]", collection, first))
		} else {
			seen[id] = i
		}

		if _, err := models.ParseDate(r.Date); err != nil {
			add(IssueUnparseableDate, fmt.Sprintf("date %q cannot be parsed and will never match", r.Date))
		}

		if narration.Extract(r.Details) == "" {
			add(IssueBlankNarration, "details have no narration text after cleanup")
		}
	}
	return count
}
