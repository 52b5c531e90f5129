package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side of the ledger a target record was posted to
type Direction string

const (
	// DirectionCredit represents money coming in
	DirectionCredit Direction = "credit"
	// DirectionDebit represents money going out
	DirectionDebit Direction = "debit"
)

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is one of the known values
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// ParseDirection normalizes the many spellings statements use for a direction
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREDIT", "C", "CR", "DEPOSIT", "IN":
		return DirectionCredit, nil
	case "DEBIT", "D", "DR", "WITHDRAWAL", "OUT":
		return DirectionDebit, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be credit or debit", s)
	}
}

// DirectionFromAmount derives a direction from the sign of an amount
func DirectionFromAmount(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionDebit
	}
	return DirectionCredit
}

// SourceRecord is one record of the record1 collection
type SourceRecord struct {
	ItemID  string          `json:"itemid"`
	Details string          `json:"details"`
	Amount  decimal.Decimal `json:"amount"`
	Date    string          `json:"date"`
}

// Validate performs basic validation on the SourceRecord
func (r SourceRecord) Validate() error {
	if strings.TrimSpace(r.ItemID) == "" {
		return fmt.Errorf("itemid cannot be empty")
	}
	if strings.TrimSpace(r.Date) == "" {
		return fmt.Errorf("date cannot be empty")
	}
	return nil
}

// String returns a string representation of the SourceRecord
func (r SourceRecord) String() string {
	return fmt.Sprintf("SourceRecord{ID: %s, Amount: %s, Date: %s}", r.ItemID, r.Amount.String(), r.Date)
}

// MarshalJSON writes the amount as a JSON number
func (r SourceRecord) MarshalJSON() ([]byte, error) {
	type Alias SourceRecord
	return json.Marshal(&struct {
		Amount json.Number `json:"amount"`
		*Alias
	}{
		Amount: json.Number(r.Amount.String()),
		Alias:  (*Alias)(&r),
	})
}

// UnmarshalJSON reads the amount from a JSON number
func (r *SourceRecord) UnmarshalJSON(data []byte) error {
	type Alias SourceRecord
	aux := &struct {
		Amount json.Number `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	amount, err := amountFromNumber(aux.Amount)
	if err != nil {
		return err
	}
	r.Amount = amount
	return nil
}

// TargetRecord is one record of the record2 collection.
// TransactionType is carried for reporting and never used when matching.
type TargetRecord struct {
	ItemID          string          `json:"itemid"`
	Details         string          `json:"details"`
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date"`
	TransactionType Direction       `json:"transactionType,omitempty"`
}

// Validate performs basic validation on the TargetRecord
func (r TargetRecord) Validate() error {
	if err := r.Base().Validate(); err != nil {
		return err
	}
	if r.TransactionType != "" && !r.TransactionType.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", r.TransactionType)
	}
	return nil
}

// Base returns the fields shared with source records
func (r TargetRecord) Base() SourceRecord {
	return SourceRecord{ItemID: r.ItemID, Details: r.Details, Amount: r.Amount, Date: r.Date}
}

// String returns a string representation of the TargetRecord
func (r TargetRecord) String() string {
	return fmt.Sprintf("TargetRecord{ID: %s, Amount: %s, Date: %s, Type: %s}",
		r.ItemID, r.Amount.String(), r.Date, r.TransactionType)
}

// MarshalJSON writes the amount as a JSON number
func (r TargetRecord) MarshalJSON() ([]byte, error) {
	type Alias TargetRecord
	return json.Marshal(&struct {
		Amount json.Number `json:"amount"`
		*Alias
	}{
		Amount: json.Number(r.Amount.String()),
		Alias:  (*Alias)(&r),
	})
}

// UnmarshalJSON reads the amount from a JSON number and normalizes the direction
func (r *TargetRecord) UnmarshalJSON(data []byte) error {
	type Alias TargetRecord
	aux := &struct {
		Amount          json.Number `json:"amount"`
		TransactionType string      `json:"transactionType"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	amount, err := amountFromNumber(aux.Amount)
	if err != nil {
		return err
	}
	r.Amount = amount

	r.TransactionType = ""
	if aux.TransactionType != "" {
		direction, err := ParseDirection(aux.TransactionType)
		if err != nil {
			return err
		}
		r.TransactionType = direction
	}
	return nil
}

// SourcesFromTargets views target-shaped records as sources
func SourcesFromTargets(targets []TargetRecord) []SourceRecord {
	sources := make([]SourceRecord, len(targets))
	for i, t := range targets {
		sources[i] = t.Base()
	}
	return sources
}

func amountFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}
	return amount, nil
}

type yamlRecord struct {
	ItemID          string    `yaml:"itemid"`
	Details         string    `yaml:"details"`
	Amount          float64   `yaml:"amount"`
	Date            string    `yaml:"date"`
	TransactionType Direction `yaml:"transactionType,omitempty"`
}

// MarshalYAML writes the amount as a YAML number
func (r SourceRecord) MarshalYAML() (interface{}, error) {
	return yamlRecord{ItemID: r.ItemID, Details: r.Details, Amount: r.Amount.InexactFloat64(), Date: r.Date}, nil
}

// MarshalYAML writes the amount as a YAML number
func (r TargetRecord) MarshalYAML() (interface{}, error) {
	return yamlRecord{
		ItemID:          r.ItemID,
		Details:         r.Details,
		Amount:          r.Amount.InexactFloat64(),
		Date:            r.Date,
		TransactionType: r.TransactionType,
	}, nil
}
