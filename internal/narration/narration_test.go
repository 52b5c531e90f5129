package narration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \t\n ", ""},
		{"plain text", "POS purchase   at   SHOPRITE", "POS purchase at SHOPRITE"},
		{"narration label", "TRF Narration: Payment to ACME Ltd", "Payment to ACME Ltd"},
		{"label any case", "xx NARRATION:salary january", "salary january"},
		{"ref trailer", "Narration: Payment to ACME REF 99812", "Payment to ACME"},
		{"balance trailer", "Transfer from John Balance 1,200.00", "Transfer from John"},
		{"debits then credits", "Airtime topup Debits 100 Credits 0", "Airtime topup"},
		{"marker inside a word", "PREFERRED vendor payment", "P"},
		{"trailer only", "REF 12345", ""},
		{"multiline", "Narration:\nRent\n\nJanuary\nRef: 77", "Rent January"},
		{"non ascii kept", "Narration: Café Lagos ref 1", "Café Lagos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.raw))
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	inputs := []string{
		"TRF Narration: Payment to ACME Ltd REF 99812 Balance 1,200.00",
		"  salary   for   march ",
		"Narration: Café Lagos",
		"POS WEB PMT ZENITH Debits 5,000.00",
	}
	for _, in := range inputs {
		once := Extract(in)
		assert.Equal(t, once, Extract(once), "input %q", in)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe lagos", Normalize("Café LAGOS"))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"payment", "to", "acme", "ltd", "99812"}, Tokens("Payment to ACME-Ltd, #99812"))
	assert.Empty(t, Tokens("  --  "))
}

func TestBigrams(t *testing.T) {
	assert.Equal(t, []string{"a b", "b c"}, Bigrams([]string{"a", "b", "c"}))
	assert.Nil(t, Bigrams([]string{"a"}))
}
