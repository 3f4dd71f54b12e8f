package scoring

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns the normalized edit-distance similarity of a and b in
// [0,1]. Comparison is case-insensitive and ignores surrounding whitespace;
// lengths and distance are counted in runes.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	a = strings.TrimSpace(strings.ToLower(a))
	b = strings.TrimSpace(strings.ToLower(b))
	if a == b {
		return 1.0
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return math.Max(0, float64(maxLen-dist)/float64(maxLen))
}

// clamp bounds v to [0,1] and maps NaN to 0.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// amplifyAbove stretches the part of v that exceeds knee by gain.
func amplifyAbove(v, knee, gain float64) float64 {
	if v > knee {
		return knee + (v-knee)*gain
	}
	return v
}
