package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Bonus weights. A missing system scores higher than a checked mismatch;
// callers rely on these exact values.
const (
	systemBonusAbsent   = 0.1
	systemBonusMatch    = 0.3
	systemBonusToken    = 0.15
	systemBonusBaseline = 0.05

	areaBonusBaseline = 0.05
	areaBonusDirect   = 0.25
	areaBonusKeyword  = 0.2
	areaBonusPartial  = 0.15

	medicalBonusConcept = 0.25
	medicalBonusPrefix  = 0.1

	consistencyBonusMatch    = 0.15
	consistencyBonusBaseline = 0.05
)

var tokenSep = regexp.MustCompile(`[\s,]+`)

// TraditionalSystemBonus rewards a NAMASTE record and a TM2 record that
// come from the same traditional medicine system.
func TraditionalSystemBonus(namasteSystem, tm2System string) float64 {
	if namasteSystem == "" || tm2System == "" {
		return systemBonusAbsent
	}

	n := strings.ToLower(namasteSystem)
	t := strings.ToLower(tm2System)
	for _, sys := range traditionalSystems {
		if containsAnyFold(n, sys.variants) && containsAnyFold(t, sys.variants) {
			return systemBonusMatch
		}
	}

	for _, nw := range tokenSep.Split(n, -1) {
		if utf8.RuneCountInString(nw) <= 3 {
			continue
		}
		for _, tw := range tokenSep.Split(t, -1) {
			if nw == tw {
				return systemBonusToken
			}
		}
	}
	return systemBonusBaseline
}

// TherapeuticAreaBonus rewards NAMASTE terms that mention the TM2 record's
// therapeutic area, directly or through the area's keywords.
func TherapeuticAreaBonus(namasteTerms []string, area string) float64 {
	if area == "" {
		return areaBonusBaseline
	}

	terms := strings.ToLower(strings.Join(namasteTerms, " "))
	lowerArea := strings.ToLower(area)

	if strings.Contains(terms, lowerArea) || strings.Contains(lowerArea, "general") {
		return areaBonusDirect
	}

	for _, a := range therapeuticAreas {
		if strings.Contains(lowerArea, strings.ToLower(a.key)) && containsAny(terms, a.variants) {
			return areaBonusKeyword
		}
	}

	termWords := tokenSep.Split(terms, -1)
	for _, aw := range tokenSep.Split(lowerArea, -1) {
		if utf8.RuneCountInString(aw) <= 4 {
			continue
		}
		for _, tw := range termWords {
			if utf8.RuneCountInString(tw) > 4 && (strings.Contains(aw, tw) || strings.Contains(tw, aw)) {
				return areaBonusPartial
			}
		}
	}
	return areaBonusBaseline
}

// MedicalTerminologyBonus rewards TM2 and ICD-11 texts that both mention the
// same disease concept. Failing that, a four-letter stem of any long variant
// appearing on either side earns a smaller bonus.
func MedicalTerminologyBonus(tm2Terms, icdTerms []string) float64 {
	tm2Text := strings.ToLower(strings.Join(tm2Terms, " "))
	icdText := strings.ToLower(strings.Join(icdTerms, " "))

	for _, c := range diseaseConcepts {
		if containsAny(tm2Text, c.variants) && containsAny(icdText, c.variants) {
			return medicalBonusConcept
		}
	}

	for _, c := range diseaseConcepts {
		for _, v := range c.variants {
			if utf8.RuneCountInString(v) <= 4 {
				continue
			}
			stem := string([]rune(v)[:4])
			if strings.Contains(tm2Text, stem) || strings.Contains(icdText, stem) {
				return medicalBonusPrefix
			}
		}
	}
	return 0
}

// TherapeuticConsistencyBonus rewards ICD-11 text that carries a keyword of
// the TM2 record's declared therapeutic area. The area must match a known
// label exactly.
func TherapeuticConsistencyBonus(tm2 TM2Record, icdTerms []string) float64 {
	if tm2.TherapeuticArea == "" {
		return consistencyBonusBaseline
	}
	keywords, ok := consistencyAreas[tm2.TherapeuticArea]
	if ok && containsAny(strings.ToLower(strings.Join(icdTerms, " ")), keywords) {
		return consistencyBonusMatch
	}
	return consistencyBonusBaseline
}

func containsAnyFold(lowerText string, variants []string) bool {
	for _, v := range variants {
		if strings.Contains(lowerText, strings.ToLower(v)) {
			return true
		}
	}
	return false
}
