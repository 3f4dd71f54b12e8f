package scoring

import (
	"math"
	"unicode/utf8"
)

// NamasteToTM2Confidence scores the first layer of a mapping chain.
func NamasteToTM2Confidence(n NamasteRecord, t TM2Record) float64 {
	namasteTerms := n.Terms()
	tm2Terms := t.Terms()

	var best, total float64
	var comparisons int
	for _, nt := range namasteTerms {
		for _, tt := range tm2Terms {
			sim := SemanticSimilarity(nt, tt, nil, nil)
			best = math.Max(best, sim)
			total += sim
			comparisons++
		}
	}

	var avg float64
	if comparisons > 0 {
		avg = total / float64(comparisons)
	}

	base := best*0.7 + avg*0.3
	if best > 0.4 {
		base += 0.1
	}
	if best > 0.6 {
		base += 0.1
	}

	systemBonus := TraditionalSystemBonus(n.System, t.TraditionalSystem)
	areaBonus := TherapeuticAreaBonus(namasteTerms, t.TherapeuticArea)

	var lengthBonus float64
	if lengthSimilarity(namasteTerms, tm2Terms) > 0.7 {
		lengthBonus = 0.05
	}

	final := base + systemBonus + areaBonus + lengthBonus
	return clamp(amplifyAbove(final, 0.4, 1.4))
}

// TM2ToICDConfidence scores the second layer of a mapping chain. Besides the
// best pairwise similarity it weighs the runner-up and the mean, so a single
// lucky term pair counts for less than broad agreement.
func TM2ToICDConfidence(t TM2Record, i ICDRecord) float64 {
	tm2Terms := t.Terms()
	icdTerms := i.Terms()

	var best, second, total float64
	var comparisons int
	for _, tt := range tm2Terms {
		for _, it := range icdTerms {
			sim := SemanticSimilarity(tt, it, nil, nil)
			if sim > best {
				second = best
				best = sim
			} else if sim > second {
				second = sim
			}
			total += sim
			comparisons++
		}
	}

	var avg float64
	if comparisons > 0 {
		avg = total / float64(comparisons)
	}

	base := best*0.6 + second*0.2 + avg*0.2
	medicalBonus := MedicalTerminologyBonus(tm2Terms, icdTerms)
	consistencyBonus := TherapeuticConsistencyBonus(t, icdTerms)
	if best > 0.3 {
		base += 0.1
	}
	if best > 0.5 {
		base += 0.1
	}

	final := base + medicalBonus + consistencyBonus
	return clamp(amplifyAbove(final, 0.3, 1.5))
}

// OverallConfidence folds both layer confidences into one score for the
// whole NAMASTE to ICD-11 chain.
func OverallConfidence(layer1, layer2 float64) float64 {
	return clamp(amplifyAbove(overallScore(layer1, layer2), 0.5, 1.2))
}

// overallScore is the chain score before the final stretch and clamp.
func overallScore(layer1, layer2 float64) float64 {
	avg := (layer1 + layer2) / 2
	weakest := math.Min(layer1, layer2)
	strongest := math.Max(layer1, layer2)

	score := avg*0.8 + weakest*0.2
	if avg > 0.6 {
		score += 0.1
	}
	if strongest > 0.8 {
		score += 0.05
	}
	if weakest > 0.5 {
		score += 0.05
	}
	if consistency := 1 - math.Abs(layer1-layer2); consistency > 0.8 {
		score += 0.05
	}
	return score
}

// lengthSimilarity compares the average length of two term lists, where the
// average is taken over the space-joined list. An empty list yields 0.
func lengthSimilarity(a, b []string) float64 {
	avgA := avgJoinedLen(a)
	avgB := avgJoinedLen(b)
	longest := math.Max(avgA, avgB)
	if avgA == 0 || avgB == 0 || longest == 0 {
		return 0
	}
	return 1 - math.Abs(avgA-avgB)/longest
}

func avgJoinedLen(terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	var chars int
	for _, t := range terms {
		chars += utf8.RuneCountInString(t)
	}
	chars += len(terms) - 1
	return float64(chars) / float64(len(terms))
}
