package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultDateToleranceDays is the widest gap, in whole days, between two matching records
const DefaultDateToleranceDays = 5

const day = 24 * time.Hour

// dateFormats are tried in order; ISO calendar dates come first
var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses a calendar date or timestamp using the supported formats
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DayDifference returns the absolute difference in days, rounded up
func DayDifference(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(float64(diff) / float64(day)))
}

// WithinDateTolerance reports whether two date strings are at most toleranceDays apart.
// A date that cannot be parsed never matches.
func WithinDateTolerance(d1, d2 string, toleranceDays int) bool {
	t1, err := ParseDate(d1)
	if err != nil {
		return false
	}
	t2, err := ParseDate(d2)
	if err != nil {
		return false
	}
	return DayDifference(t1, t2) <= toleranceDays
}

// NormalizeDate rewrites a parseable date as YYYY-MM-DD and leaves anything else untouched
func NormalizeDate(s string) string {
	t, err := ParseDate(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return t.Format("2006-01-02")
}
