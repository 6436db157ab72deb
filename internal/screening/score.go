package screening

import (
	"math"
	"strings"
)

// Score computes a similarity score in [0,1] between two normalized names.
// Tiers are evaluated in strict priority order and never blended:
//
//  1. either operand empty: 0.0
//  2. exact equality: 1.0
//  3. one a substring of the other: 0.9 (fixed, regardless of length
//     difference, so "acme" vs "acme holdings" scores high but not perfect)
//  4. Jaccard index over whitespace-delimited word sets
func Score(query, candidate string) float64 {
	if query == "" || candidate == "" {
		return 0.0
	}
	if query == candidate {
		return 1.0
	}
	if strings.Contains(query, candidate) || strings.Contains(candidate, query) {
		return 0.9
	}

	queryWords := wordSet(query)
	candidateWords := wordSet(candidate)
	if len(queryWords) == 0 || len(candidateWords) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range queryWords {
		if _, ok := candidateWords[w]; ok {
			intersection++
		}
	}
	union := len(queryWords) + len(candidateWords) - intersection

	return float64(intersection) / float64(union)
}

// RoundScore rounds a score to the two-decimal precision carried on match
// results.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
