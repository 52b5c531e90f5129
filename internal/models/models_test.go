package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input    string
		expected Direction
		wantErr  bool
	}{
		{"credit", DirectionCredit, false},
		{"CR", DirectionCredit, false},
		{" Deposit ", DirectionCredit, false},
		{"debit", DirectionDebit, false},
		{"dr", DirectionDebit, false},
		{"Withdrawal", DirectionDebit, false},
		{"transfer", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDirection(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDirection(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseDirection(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDirectionFromAmount(t *testing.T) {
	if DirectionFromAmount(decimal.NewFromInt(-5)) != DirectionDebit {
		t.Error("expected negative amount to be a debit")
	}
	if DirectionFromAmount(decimal.NewFromInt(5)) != DirectionCredit {
		t.Error("expected positive amount to be a credit")
	}
}

func TestSourceRecord_JSON(t *testing.T) {
	input := `{"itemid":"S1","details":"POS PURCHASE","amount":106000.50,"date":"2025-01-15"}`

	var r SourceRecord
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.ItemID != "S1" || r.Details != "POS PURCHASE" || r.Date != "2025-01-15" {
		t.Errorf("unexpected record %+v", r)
	}
	if !r.Amount.Equal(decimal.RequireFromString("106000.5")) {
		t.Errorf("unexpected amount %s", r.Amount)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"amount":106000.5`) {
		t.Errorf("expected amount as a JSON number, got %s", out)
	}
	if strings.Contains(string(out), "transactionType") {
		t.Errorf("source records have no transaction type, got %s", out)
	}
}

func TestTargetRecord_JSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		direction Direction
		wantErr   bool
	}{
		{"credit", `{"itemid":"T1","details":"x","amount":10,"date":"2025-01-16","transactionType":"credit"}`, DirectionCredit, false},
		{"short debit", `{"itemid":"T1","details":"x","amount":10,"date":"2025-01-16","transactionType":"DR"}`, DirectionDebit, false},
		{"missing type", `{"itemid":"T1","details":"x","amount":10,"date":"2025-01-16"}`, "", false},
		{"unknown type", `{"itemid":"T1","details":"x","amount":10,"date":"2025-01-16","transactionType":"swap"}`, "", true},
		{"missing amount", `{"itemid":"T1","details":"x","date":"2025-01-16"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r TargetRecord
			err := json.Unmarshal([]byte(tt.input), &r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && r.TransactionType != tt.direction {
				t.Errorf("expected direction %q, got %q", tt.direction, r.TransactionType)
			}
		})
	}
}

func TestTargetRecord_MarshalInsideSlice(t *testing.T) {
	records := []TargetRecord{{
		ItemID:          "T9",
		Details:         "Transfer",
		Amount:          decimal.NewFromInt(42),
		Date:            "2025-02-01",
		TransactionType: DirectionDebit,
	}}

	out, err := json.Marshal(struct {
		Records []TargetRecord `json:"records"`
	}{records})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"records":[{"amount":42,"itemid":"T9","details":"Transfer","date":"2025-02-01","transactionType":"debit"}]}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestRecordValidate(t *testing.T) {
	if err := (SourceRecord{ItemID: "a", Date: "2025-01-01"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (SourceRecord{ItemID: " ", Date: "2025-01-01"}).Validate(); err == nil {
		t.Error("expected error for blank itemid")
	}
	if err := (TargetRecord{ItemID: "a", Date: "2025-01-01", TransactionType: "swap"}).Validate(); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2025-01-15", "2025-01-15", false},
		{"2025-01-15T10:30:00Z", "2025-01-15", false},
		{"2025-01-15 10:30:00", "2025-01-15", false},
		{"2025/01/15", "2025-01-15", false},
		{"Jan 15, 2025", "2025-01-15", false},
		{"15 Jan 2025", "2025-01-15", false},
		{"not-a-date", "", true},
		{"2025-02-30", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestDayDifference(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		b    time.Time
		want int
	}{
		{"same instant", base, 0},
		{"one hour rounds up", base.Add(time.Hour), 1},
		{"exact days", base.AddDate(0, 0, 5), 5},
		{"just over five days", base.AddDate(0, 0, 5).Add(time.Minute), 6},
		{"negative", base.AddDate(0, 0, -3), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayDifference(base, tt.b); got != tt.want {
				t.Errorf("DayDifference() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithinDateTolerance(t *testing.T) {
	tests := []struct {
		name string
		d1   string
		d2   string
		tol  int
		want bool
	}{
		{"same day", "2025-01-15", "2025-01-15", 5, true},
		{"one day", "2025-01-15", "2025-01-16", 5, true},
		{"boundary", "2025-01-01", "2025-01-06", 5, true},
		{"nine days", "2025-01-01", "2025-01-10", 5, false},
		{"zero tolerance same day", "2025-01-01", "2025-01-01", 0, true},
		{"zero tolerance next day", "2025-01-01", "2025-01-02", 0, false},
		{"timestamp against date", "2025-01-01T12:00:00Z", "2025-01-06", 5, true},
		{"malformed first", "garbage", "2025-01-01", 5, false},
		{"malformed second", "2025-01-01", "31/31/2025", 5, false},
		{"empty", "", "2025-01-01", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinDateTolerance(tt.d1, tt.d2, tt.tol); got != tt.want {
				t.Errorf("WithinDateTolerance(%q, %q, %d) = %v, want %v", tt.d1, tt.d2, tt.tol, got, tt.want)
			}
			if got := WithinDateTolerance(tt.d2, tt.d1, tt.tol); got != tt.want {
				t.Errorf("WithinDateTolerance is not symmetric for %q, %q", tt.d1, tt.d2)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	if got := NormalizeDate("2025-01-15T08:00:00Z"); got != "2025-01-15" {
		t.Errorf("expected 2025-01-15, got %s", got)
	}
	if got := NormalizeDate(" yesterday "); got != "yesterday" {
		t.Errorf("expected unparseable input to be trimmed only, got %q", got)
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"100.50", "100.5", false},
		{"$1,234.56", "1234.56", false},
		{"₦106,000", "106000", false},
		{"-75", "-75", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("got %s, want %s", got.String(), tt.want)
			}
		})
	}
}

func TestParseLooseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"NGN 106,000.00", "106000"},
		{"-1,250.75 DR", "-1250.75"},
		{"12", "12"},
		{"n/a", "0"},
		{"1.2.3", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLooseAmount(tt.input); got.String() != tt.want {
				t.Errorf("ParseLooseAmount(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestSumAmounts(t *testing.T) {
	sources := []SourceRecord{
		{Amount: decimal.RequireFromString("0.1")},
		{Amount: decimal.RequireFromString("0.2")},
	}
	if got := SumSourceAmounts(sources); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("expected exact 0.3, got %s", got)
	}
	if got := SumTargetAmounts(nil); !got.IsZero() {
		t.Errorf("expected zero, got %s", got)
	}
}
