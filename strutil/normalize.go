package strutil

import (
	"strings"

	lev "github.com/agnivade/levenshtein"
)

// NormalizeLower trims surrounding whitespace and converts to lower case.
// Use for stream and service names, where case is not significant.
func NormalizeLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Closest returns the candidate nearest to value by edit distance, or "" when
// nothing is within maxDistance. Ties go to the earlier candidate.
func Closest(value string, candidates []string, maxDistance int) string {
	value = NormalizeLower(value)
	if value == "" {
		return ""
	}
	best := ""
	bestDist := maxDistance + 1
	for _, candidate := range candidates {
		d := lev.ComputeDistance(value, NormalizeLower(candidate))
		if d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	return best
}

// DidYouMean formats a suggestion suffix for an unknown name, or "" when no
// candidate is close enough to be useful.
func DidYouMean(value string, candidates []string) string {
	if match := Closest(value, candidates, 2); match != "" {
		return " (did you mean " + match + "?)"
	}
	return ""
}
