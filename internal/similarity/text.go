package similarity

import (
	"github.com/agnivade/levenshtein"
)

// EditSimilarity is 1 minus the Levenshtein distance over the longer length,
// so identical strings score 1 and completely different ones approach 0.
func EditSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
