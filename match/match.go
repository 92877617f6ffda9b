// Package match provides the text normalisation and similarity scoring used
// to line up user queries with each other (demo catalog lookups, context
// keys) and the commercial-intent test that gates enrichment.
package match

import (
	"regexp"
	"strings"
)

// Normalize lowercases s and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity compares a and b position by position after normalisation and
// returns the share of matching characters over the longer string's length.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(Normalize(a)), []rune(Normalize(b))
	longer := max(len(ra), len(rb))
	if longer == 0 {
		return 1
	}
	same := 0
	for i := 0; i < min(len(ra), len(rb)); i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(longer)
}

// Best returns the index of the candidate most similar to s and its score.
// It returns -1 when candidates is empty.
func Best(s string, candidates []string) (int, float64) {
	best, score := -1, 0.0
	for i, c := range candidates {
		if sc := Similarity(s, c); sc > score || best < 0 {
			best, score = i, sc
		}
	}
	return best, score
}

var commercialPattern = regexp.MustCompile(`(?i)\b(` + strings.Join([]string{
	`best`, `top`, `vs\.?`, `versus`, `compare[ds]?`, `comparison`, `buy(ing)?`,
	`price[ds]?`, `pricing`, `cost(s)?`, `cheap(er|est)?`, `afford(able)?`,
	`review(s)?`, `recommend(ed|ation|ations)?`, `which`, `should i`,
	`worth`, `alternative(s)?`, `brand(s)?`, `deal(s)?`, `safer`, `better`,
	`rated`, `budget`, `premium`, `product(s)?`, `subscription`, `plan(s)?`,
	`purchase`, `shop(ping)?`, `option(s)?`,
}, "|") + `)\b`)

// LooksCommercial reports whether q reads like a shopping or comparison
// question, the only kind of query the enrichment service answers.
func LooksCommercial(q string) bool {
	return commercialPattern.MatchString(q)
}
