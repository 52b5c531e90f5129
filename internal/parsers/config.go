package parsers

import (
	"fmt"
	"strings"
)

// Standard record fields a CSV column can map to
const (
	FieldItemID          = "itemid"
	FieldDetails         = "details"
	FieldAmount          = "amount"
	FieldDate            = "date"
	FieldTransactionType = "transactionType"
	FieldDebit           = "debit"
	FieldCredit          = "credit"
)

// ColumnConfig describes how the columns of a CSV record file map onto record fields
type ColumnConfig struct {
	Name          string            `json:"name" mapstructure:"name"`
	HasHeader     bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter     rune              `json:"delimiter" mapstructure:"delimiter"`
	ColumnAliases map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
	Description   string            `json:"description,omitempty" mapstructure:"description"`
}

// defaultAliases maps lowercased header names to standard fields
var defaultAliases = map[string]string{
	"itemid":           FieldItemID,
	"item_id":          FieldItemID,
	"id":               FieldItemID,
	"reference":        FieldItemID,
	"transaction_id":   FieldItemID,
	"trxid":            FieldItemID,
	"details":          FieldDetails,
	"narration":        FieldDetails,
	"description":      FieldDetails,
	"remarks":          FieldDetails,
	"memo":             FieldDetails,
	"amount":           FieldAmount,
	"value":            FieldAmount,
	"date":             FieldDate,
	"transaction_date": FieldDate,
	"posting_date":     FieldDate,
	"value_date":       FieldDate,
	"transactiontype":  FieldTransactionType,
	"transaction_type": FieldTransactionType,
	"type":             FieldTransactionType,
	"direction":        FieldTransactionType,
	"debit":            FieldDebit,
	"withdrawal":       FieldDebit,
	"withdrawals":      FieldDebit,
	"credit":           FieldCredit,
	"deposit":          FieldCredit,
	"deposits":         FieldCredit,
}

// Validate checks if the column configuration is valid
func (cc *ColumnConfig) Validate() error {
	if strings.TrimSpace(cc.Name) == "" {
		return fmt.Errorf("column layout name cannot be empty")
	}

	if cc.Delimiter == 0 || cc.Delimiter == '\n' || cc.Delimiter == '\r' || cc.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", cc.Delimiter)
	}

	for header, field := range cc.ColumnAliases {
		if !isStandardField(field) {
			return fmt.Errorf("alias %q maps to unknown field %q", header, field)
		}
	}

	return nil
}

// ResolveHeader returns the record field a header maps to. Layout aliases win
// over the built-in ones.
func (cc *ColumnConfig) ResolveHeader(header string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(header))

	for alias, field := range cc.ColumnAliases {
		if strings.ToLower(alias) == key {
			return field, true
		}
	}

	field, ok := defaultAliases[key]
	return field, ok
}

// PositionalFields is the column order assumed for files without a header row
func PositionalFields() []string {
	return []string{FieldItemID, FieldDetails, FieldAmount, FieldDate, FieldTransactionType}
}

func isStandardField(field string) bool {
	switch field {
	case FieldItemID, FieldDetails, FieldAmount, FieldDate, FieldTransactionType, FieldDebit, FieldCredit:
		return true
	}
	return false
}

// DefaultColumnConfig returns the layout used when none is configured
func DefaultColumnConfig() *ColumnConfig {
	return &ColumnConfig{
		Name:          "Standard",
		HasHeader:     true,
		Delimiter:     ',',
		ColumnAliases: make(map[string]string),
		Description:   "itemid, details, amount, date and optional transactionType columns",
	}
}

// Predefined column layouts
var (
	// StandardColumns is the layout of exported record1/record2 files
	StandardColumns = DefaultColumnConfig()

	// StatementColumns is a typical bank statement export with split
	// withdrawal and deposit columns
	StatementColumns = &ColumnConfig{
		Name:      "Statement",
		HasHeader: true,
		Delimiter: ',',
		ColumnAliases: map[string]string{
			"trans. date": FieldDate,
			"ref. number": FieldItemID,
			"money out":   FieldDebit,
			"money in":    FieldCredit,
		},
		Description: "bank statement with separate debit and credit columns",
	}

	// SemicolonColumns is the European spreadsheet export variant
	SemicolonColumns = &ColumnConfig{
		Name:          "Semicolon",
		HasHeader:     true,
		Delimiter:     ';',
		ColumnAliases: map[string]string{},
		Description:   "standard fields separated by semicolons",
	}
)

// GetColumnConfig returns a predefined layout by name
func GetColumnConfig(name string) *ColumnConfig {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardColumns
	case "statement":
		return StatementColumns
	case "semicolon":
		return SemicolonColumns
	default:
		return nil
	}
}

// ListColumnConfigs returns all predefined layouts
func ListColumnConfigs() []*ColumnConfig {
	return []*ColumnConfig{StandardColumns, StatementColumns, SemicolonColumns}
}

// AutoDetectColumnConfig picks the predefined layout resolving the most headers
func AutoDetectColumnConfig(headers []string) *ColumnConfig {
	best := StandardColumns
	bestScore := -1

	for _, config := range ListColumnConfigs() {
		score := 0
		for _, h := range headers {
			if _, ok := config.ResolveHeader(h); ok {
				score++
			}
		}
		if score > bestScore {
			best = config
			bestScore = score
		}
	}

	return best
}
