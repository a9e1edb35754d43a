package match

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// FuzzyRatio returns a character-level similarity in [0, 1] based on
// Levenshtein edit distance over the lowercased inputs. Two empty strings
// score 1.
func FuzzyRatio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	r := 1 - float64(dist)/float64(longest)
	if r < 0 {
		return 0
	}
	return r
}

// TokenSortRatio returns FuzzyRatio over the inputs with their words sorted,
// making the comparison invariant to word order ("chrome open" vs
// "open chrome").
func TokenSortRatio(a, b string) float64 {
	return FuzzyRatio(sortTokens(a), sortTokens(b))
}

// WordSimilarity returns the Jaro-Winkler similarity of two single words,
// case-insensitive. Used by the prompt refiner for per-word alignment of the
// live recognizer output against the offline transcription.
func WordSimilarity(a, b string) float64 {
	return matchr.JaroWinkler(strings.ToLower(a), strings.ToLower(b), false)
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
