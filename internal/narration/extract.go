// Package narration pulls the descriptive part out of raw transaction details.
//
// Bank exports pack a lot into one free-text column: the narration itself,
// a reference number, and running debit, credit and balance figures. Only the
// narration carries meaning worth comparing, so Extract drops the rest:
//
//	Extract("TRF  Narration: Payment to ACME Ltd REF 99812 Balance 1,200.00")
//	// "Payment to ACME Ltd"
package narration

import (
	"strings"
)

const marker = "narration:"

// trailers are cut in this order, each against the result of the previous cut
var trailers = []string{"ref", "debits", "credits", "balance"}

// Extract normalizes whitespace, keeps what follows a "narration:" label and
// truncates at the first trailing reference, debit, credit or balance marker.
// Matching is ASCII case-insensitive.
func Extract(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.Join(strings.Fields(raw), " ")

	if idx := indexFold(text, marker); idx >= 0 {
		text = text[idx+len(marker):]
	}

	for _, t := range trailers {
		if idx := indexFold(text, t); idx >= 0 {
			text = text[:idx]
		}
	}

	return strings.TrimSpace(text)
}

// indexFold is strings.Index with ASCII-only case folding, so offsets in the
// folded string are valid offsets in s.
func indexFold(s, substr string) int {
	return strings.Index(asciiLower(s), substr)
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
