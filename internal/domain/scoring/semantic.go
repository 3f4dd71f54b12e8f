package scoring

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	wordBonusTrigger   = 0.4
	wordMatchThreshold = 0.7
	wordBonus          = 0.2
	semanticBoostFloor = 0.3
	semanticBoost      = 1.3
)

// SemanticSimilarity compares two terms after expanding each through the
// medical synonym table and appending the caller's own synonyms. The best
// pairwise lexical similarity wins, with a bonus for strong whole-word
// matches and a global boost for anything above 0.3.
func SemanticSimilarity(term1, term2 string, synonyms1, synonyms2 []string) float64 {
	if term1 == "" || term2 == "" {
		return 0
	}

	terms1 := append(expandTerm(term1), lowerTrimAll(synonyms1)...)
	terms2 := append(expandTerm(term2), lowerTrimAll(synonyms2)...)

	var best float64
	for _, t1 := range terms1 {
		for _, t2 := range terms2 {
			sim := Similarity(t1, t2)
			best = math.Max(best, sim)
			if sim > wordBonusTrigger && hasStrongWordMatch(t1, t2) {
				best = math.Max(best, sim+wordBonus)
			}
		}
	}

	if best > semanticBoostFloor {
		best = math.Min(1.0, best*semanticBoost)
	}
	return clamp(best)
}

// expandTerm cleans a term and, when it mentions a known medical concept,
// returns it together with the concept key and all of its synonyms.
func expandTerm(term string) []string {
	cleaned := cleanTerm(term)
	for _, c := range medicalSynonyms {
		if strings.Contains(cleaned, c.key) || containsAny(cleaned, c.variants) {
			out := make([]string, 0, len(c.variants)+2)
			out = append(out, cleaned, c.key)
			return append(out, c.variants...)
		}
	}
	return []string{cleaned}
}

var (
	parens     = strings.NewReplacer("(", "", ")", "")
	whitespace = regexp.MustCompile(`\s+`)
)

// cleanTerm lowercases and trims before stripping parentheses, so a
// parenthesised edge can leave a single leading or trailing space.
func cleanTerm(term string) string {
	s := parens.Replace(strings.TrimSpace(strings.ToLower(term)))
	return whitespace.ReplaceAllString(s, " ")
}

func lowerTrimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(strings.ToLower(v))
	}
	return out
}

func hasStrongWordMatch(t1, t2 string) bool {
	for _, w1 := range strings.Split(t1, " ") {
		if utf8.RuneCountInString(w1) <= 3 {
			continue
		}
		for _, w2 := range strings.Split(t2, " ") {
			if utf8.RuneCountInString(w2) > 3 && Similarity(w1, w2) > wordMatchThreshold {
				return true
			}
		}
	}
	return false
}
