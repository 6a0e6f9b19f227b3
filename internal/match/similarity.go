// Package match maps free-text spreadsheet questions onto canonical database
// questions using character-bigram Dice similarity.
package match

import "strings"

// Similarity returns the Sørensen–Dice coefficient over character bigrams of
// the two strings, after lowercasing and whitespace normalization. Identical
// normalized strings score 1.0; a side shorter than two characters scores 0.
func Similarity(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == b && len(a) > 0 {
		return 1.0
	}
	runesA := []rune(a)
	runesB := []rune(b)
	if len(runesA) < 2 || len(runesB) < 2 {
		return 0.0
	}

	bigramsA := bigrams(runesA)
	bigramsB := bigrams(runesB)

	intersection := 0
	for bg, countA := range bigramsA {
		if countB, ok := bigramsB[bg]; ok {
			intersection += min(countA, countB)
		}
	}

	totalA := len(runesA) - 1
	totalB := len(runesB) - 1
	return 2.0 * float64(intersection) / float64(totalA+totalB)
}

// Normalize lowercases and collapses runs of whitespace to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func bigrams(runes []rune) map[string]int {
	out := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}
