package terminology

import (
	"time"

	"github.com/namaste/tmbridge/internal/domain/scoring"
)

// Code system URIs served by $lookup and $translate.
const (
	SystemNAMASTE = "http://namaste.ayush.gov.in/fhir/CodeSystem/namaste"
	SystemTM2     = "http://id.who.int/icd/release/11/tm2"
	SystemICD11   = "http://id.who.int/icd/release/11/mms"
)

// TM2 class kinds and derived pattern types.
const (
	ClassCategory = "category"
	ClassBlock    = "block"
	ClassDisorder = "disorder"

	PatternPatterns  = "Patterns"
	PatternDisorders = "Disorders"
	PatternRoot      = "Root"
	PatternSymptoms  = "Symptoms"
)

// NamasteCode is a NAMASTE (AYUSH) terminology concept.
type NamasteCode struct {
	Code        string    `db:"code" json:"code"`
	Display     string    `db:"display" json:"display"`
	EnglishName string    `db:"english_name" json:"english_name,omitempty"`
	Name        string    `db:"name" json:"name,omitempty"`
	System      string    `db:"system" json:"system,omitempty"`
	Synonyms    string    `db:"synonyms" json:"synonyms,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (n *NamasteCode) ToRecord() scoring.NamasteRecord {
	return scoring.NamasteRecord{
		Display:     n.Display,
		EnglishName: n.EnglishName,
		Name:        n.Name,
		Synonyms:    n.Synonyms,
		System:      n.System,
	}
}

// TM2Code is an ICD-11 Traditional Medicine chapter 2 concept with the
// metadata derived at ingestion.
type TM2Code struct {
	Code              string   `db:"code" json:"code"`
	Title             string   `db:"title" json:"title"`
	ClassKind         string   `db:"class_kind" json:"class_kind,omitempty"`
	Parent            string   `db:"parent" json:"parent,omitempty"`
	TraditionalSystem string   `db:"traditional_system" json:"traditional_system,omitempty"`
	TherapeuticArea   string   `db:"therapeutic_area" json:"therapeutic_area,omitempty"`
	PatternType       string   `db:"pattern_type" json:"pattern_type,omitempty"`
	Synonyms          []string `db:"synonyms" json:"synonyms,omitempty"`
	Keywords          []string `db:"keywords" json:"keywords,omitempty"`
	Description       string   `db:"description" json:"description,omitempty"`
	Active            bool     `db:"active" json:"active"`
}

func (t *TM2Code) ToRecord() scoring.TM2Record {
	return scoring.TM2Record{
		Title:             t.Title,
		Description:       t.Description,
		Synonyms:          t.Synonyms,
		Keywords:          t.Keywords,
		TraditionalSystem: t.TraditionalSystem,
		TherapeuticArea:   t.TherapeuticArea,
	}
}

// ICD11Code is an ICD-11 MMS (or TM2 module) entity.
type ICD11Code struct {
	Code        string   `db:"code" json:"code"`
	Title       string   `db:"title" json:"title"`
	ClassKind   string   `db:"class_kind" json:"class_kind,omitempty"`
	Parent      string   `db:"parent" json:"parent,omitempty"`
	Synonyms    []string `db:"synonyms" json:"synonyms,omitempty"`
	Description string   `db:"description" json:"description,omitempty"`
	Module      string   `db:"module" json:"module,omitempty"`
}

func (i *ICD11Code) ToRecord() scoring.ICDRecord {
	return scoring.ICDRecord{
		Title:       i.Title,
		Synonyms:    i.Synonyms,
		Description: i.Description,
	}
}

// SearchResult is the system-neutral view returned by ValueSet-style search.
type SearchResult struct {
	Code      string `json:"code"`
	Display   string `json:"display"`
	SystemURI string `json:"system"`
}

// TM2Stats counts TM2 codes by their derived metadata. Buckets are ordered
// by count, largest first.
type TM2Stats struct {
	Total             int           `json:"total"`
	BySystem          []CountBucket `json:"by_traditional_system"`
	ByTherapeuticArea []CountBucket `json:"by_therapeutic_area"`
	ByPatternType     []CountBucket `json:"by_pattern_type"`
}

type CountBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
