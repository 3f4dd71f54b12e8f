package mapping

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/namaste/tmbridge/internal/domain/scoring"
	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/fhir"
)

// ConceptMapURL identifies the NAMASTE -> ICD-11 ConceptMap served from the
// stored mappings.
const ConceptMapURL = "http://namaste.ayush.gov.in/fhir/ConceptMap/namaste-to-icd11"

// Mapping maps to the mappings table: one scored NAMASTE -> TM2 -> ICD-11
// chain.
type Mapping struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	NamasteCode       string     `db:"namaste_code" json:"namaste_code"`
	NamasteDisplay    string     `db:"namaste_display" json:"namaste_display"`
	TM2Code           string     `db:"tm2_code" json:"tm2_code"`
	TM2Title          string     `db:"tm2_title" json:"tm2_title"`
	ICDCode           string     `db:"icd_code" json:"icd_code"`
	ICDTitle          string     `db:"icd_title" json:"icd_title"`
	TM2Confidence     float64    `db:"tm2_confidence" json:"tm2_confidence"`
	ICDConfidence     float64    `db:"icd_confidence" json:"icd_confidence"`
	OverallConfidence float64    `db:"overall_confidence" json:"overall_confidence"`
	Equivalence       string     `db:"equivalence" json:"equivalence"`
	ConfidenceLevel   string     `db:"confidence_level" json:"confidence_level"`
	MappingType       string     `db:"mapping_type" json:"mapping_type"`
	TraditionalSystem string     `db:"traditional_system" json:"traditional_system,omitempty"`
	CuratorApproved   bool       `db:"curator_approved" json:"curator_approved"`
	ApprovedBy        *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// newMapping builds an unsaved mapping from the three resolved codes.
func newMapping(n *terminology.NamasteCode, t *terminology.TM2Code, i *terminology.ICD11Code) *Mapping {
	system := t.TraditionalSystem
	if system == "" {
		system = n.System
	}
	return &Mapping{
		NamasteCode:       n.Code,
		NamasteDisplay:    n.Display,
		TM2Code:           t.Code,
		TM2Title:          t.Title,
		ICDCode:           i.Code,
		ICDTitle:          i.Title,
		TraditionalSystem: system,
	}
}

func (m *Mapping) applyScores(b scoring.Breakdown) {
	m.TM2Confidence = b.TM2Confidence
	m.ICDConfidence = b.ICDConfidence
	m.OverallConfidence = b.OverallConfidence
	m.Equivalence = b.Equivalence
	m.ConfidenceLevel = b.ConfidenceLevel
	m.MappingType = b.MappingType
}

func (m *Mapping) cacheKey() string {
	return chainKey(m.NamasteCode, m.TM2Code, m.ICDCode)
}

// ToFHIR renders the mapping as a single-element ConceptMap.
func (m *Mapping) ToFHIR() map[string]interface{} {
	cm := newConceptMap(m.ID.String(), m.UpdatedAt)
	cm["group"] = groupsFor([]*Mapping{m})
	return cm
}

func newConceptMap(id string, updated time.Time) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "ConceptMap",
		"id":           id,
		"url":          ConceptMapURL,
		"name":         "NamasteToICD11",
		"title":        "NAMASTE to ICD-11 via TM2",
		"status":       "active",
		"meta":         fhir.Meta{LastUpdated: updated},
		"sourceUri":    terminology.SystemNAMASTE,
		"targetUri":    terminology.SystemICD11,
	}
}

// groupsFor builds one ConceptMap group per target system: the TM2 bridge
// and ICD-11. Elements keep the order of ms.
func groupsFor(ms []*Mapping) []map[string]interface{} {
	type target = map[string]interface{}
	var tm2Elems, icdElems []map[string]interface{}
	tm2Index := map[string]int{}
	icdIndex := map[string]int{}

	add := func(elems *[]map[string]interface{}, index map[string]int, m *Mapping, t target) {
		i, ok := index[m.NamasteCode]
		if !ok {
			i = len(*elems)
			index[m.NamasteCode] = i
			*elems = append(*elems, map[string]interface{}{
				"code":    m.NamasteCode,
				"display": m.NamasteDisplay,
				"target":  []target{},
			})
		}
		el := (*elems)[i]
		el["target"] = append(el["target"].([]target), t)
	}

	for _, m := range ms {
		add(&tm2Elems, tm2Index, m, target{
			"code":        m.TM2Code,
			"display":     m.TM2Title,
			"equivalence": scoring.Equivalence(m.TM2Confidence),
			"comment":     fmt.Sprintf("confidence %.2f", m.TM2Confidence),
		})
		add(&icdElems, icdIndex, m, target{
			"code":        m.ICDCode,
			"display":     m.ICDTitle,
			"equivalence": m.Equivalence,
			"comment":     fmt.Sprintf("confidence %.2f via TM2 %s", m.OverallConfidence, m.TM2Code),
		})
	}

	groups := []map[string]interface{}{}
	if len(tm2Elems) > 0 {
		groups = append(groups, map[string]interface{}{
			"source": terminology.SystemNAMASTE, "target": terminology.SystemTM2, "element": tm2Elems,
		})
	}
	if len(icdElems) > 0 {
		groups = append(groups, map[string]interface{}{
			"source": terminology.SystemNAMASTE, "target": terminology.SystemICD11, "element": icdElems,
		})
	}
	return groups
}

// ScoreRequest names the three codes of a chain to score.
type ScoreRequest struct {
	NamasteCode string `json:"namaste_code"`
	TM2Code     string `json:"tm2_code"`
	ICDCode     string `json:"icd_code"`
}

// ScoreRecordsRequest carries caller-supplied records for ad-hoc scoring.
type ScoreRecordsRequest struct {
	Namaste scoring.NamasteRecord `json:"namaste"`
	TM2     scoring.TM2Record     `json:"tm2"`
	ICD     scoring.ICDRecord     `json:"icd"`
}

// RescoreResult reports a bulk rescore.
type RescoreResult struct {
	Total    int           `json:"total"`
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// ImportResult reports a candidate CSV import.
type ImportResult struct {
	Read   int      `json:"read"`
	Scored int      `json:"scored"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}
