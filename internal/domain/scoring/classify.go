package scoring

import "math"

// FHIR ConceptMap equivalence codes assigned from a confidence value.
const (
	EquivalenceEquivalent = "equivalent"
	EquivalenceWider      = "wider"
	EquivalenceNarrower   = "narrower"
	EquivalenceUnmatched  = "unmatched"
)

// Confidence levels shown to clinicians.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// TM2 bridge mapping types.
const (
	MappingDirect      = "direct"
	MappingApproximate = "approximate"
	MappingPartial     = "partial"
)

// Equivalence maps a confidence to the FHIR ConceptMap equivalence used
// when publishing the mapping.
func Equivalence(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return EquivalenceEquivalent
	case confidence >= 0.6:
		return EquivalenceWider
	case confidence >= 0.4:
		return EquivalenceNarrower
	default:
		return EquivalenceUnmatched
	}
}

// Level buckets a confidence into high, medium or low.
func Level(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return LevelHigh
	case confidence >= 0.5:
		return LevelMedium
	default:
		return LevelLow
	}
}

// MappingTypeFor classifies a layer-1 confidence as a TM2 mapping type.
func MappingTypeFor(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return MappingDirect
	case confidence >= 0.5:
		return MappingApproximate
	default:
		return MappingPartial
	}
}

// Breakdown is the full result of scoring one NAMASTE -> TM2 -> ICD-11 chain.
type Breakdown struct {
	TM2Confidence     float64 `json:"tm2Confidence" yaml:"tm2Confidence"`
	ICDConfidence     float64 `json:"icdConfidence" yaml:"icdConfidence"`
	OverallConfidence float64 `json:"overallConfidence" yaml:"overallConfidence"`
	Equivalence       string  `json:"equivalence" yaml:"equivalence"`
	ConfidenceLevel   string  `json:"confidenceLevel" yaml:"confidenceLevel"`
	MappingType       string  `json:"mappingType" yaml:"mappingType"`
}

// ScoreChain scores both layers of a chain and derives the labels.
func ScoreChain(n NamasteRecord, t TM2Record, i ICDRecord) Breakdown {
	l1 := NamasteToTM2Confidence(n, t)
	l2 := TM2ToICDConfidence(t, i)
	overall := OverallConfidence(l1, l2)
	return Breakdown{
		TM2Confidence:     l1,
		ICDConfidence:     l2,
		OverallConfidence: overall,
		Equivalence:       Equivalence(overall),
		ConfidenceLevel:   Level(overall),
		MappingType:       MappingTypeFor(l1),
	}
}

// Stats summarizes the confidence distribution of a set of mappings.
type Stats struct {
	Total       int            `json:"total"`
	ByBand      map[string]int `json:"byConfidence"`
	Percentages map[string]int `json:"percentages"`
	Average     float64        `json:"averageConfidence"`
}

// Summarize buckets scores into high (>= 0.8), moderate (0.6 to 0.8) and
// low (< 0.6) bands.
func Summarize(scores []float64) Stats {
	st := Stats{
		Total:       len(scores),
		ByBand:      map[string]int{"high": 0, "moderate": 0, "low": 0},
		Percentages: map[string]int{"high": 0, "moderate": 0, "low": 0},
	}
	if len(scores) == 0 {
		return st
	}

	var sum float64
	for _, s := range scores {
		sum += s
		switch {
		case s >= 0.8:
			st.ByBand["high"]++
		case s >= 0.6:
			st.ByBand["moderate"]++
		default:
			st.ByBand["low"]++
		}
	}
	for band, n := range st.ByBand {
		st.Percentages[band] = int(math.Round(float64(n) / float64(len(scores)) * 100))
	}
	st.Average = sum / float64(len(scores))
	return st
}
