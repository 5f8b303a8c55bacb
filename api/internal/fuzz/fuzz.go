// Package fuzz scores label similarity on a 0..100 scale.
//
// Scoring is go-fuzzywuzzy's weighted ratio, whose base ratio is the Indel
// similarity 2*LCS/(len a + len b). Inputs are normalized with Process
// before scoring.
package fuzz

import (
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// WRatio scores a against b. An input that is empty after Process scores 0.
func WRatio(a, b string) float64 {
	a, b = Process(a), Process(b)
	if a == "" || b == "" {
		return 0
	}
	return float64(fuzzy.UWRatio(a, b))
}

// Process lower-cases s, turns every non-alphanumeric rune into a space and
// collapses runs of spaces.
func Process(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Match is the best scoring choice returned by ExtractOne.
type Match struct {
	Choice string
	Index  int
	Score  float64
}

// ExtractOne scores query against every choice with WRatio and returns the
// best one at or above cutoff. Ties keep the earliest choice, which
// fuzzy.ExtractOne does not guarantee.
func ExtractOne(query string, choices []string, cutoff float64) (Match, bool) {
	best := Match{Index: -1}
	for i, c := range choices {
		s := WRatio(query, c)
		if s >= cutoff && s > best.Score {
			best = Match{Choice: c, Index: i, Score: s}
		}
	}
	return best, best.Index >= 0
}
