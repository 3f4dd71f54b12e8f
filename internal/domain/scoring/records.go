package scoring

import "strings"

// NamasteRecord is the NAMASTE side of a layer-1 comparison.
type NamasteRecord struct {
	Display     string `json:"display,omitempty" yaml:"display"`
	EnglishName string `json:"englishName,omitempty" yaml:"englishName"`
	Name        string `json:"name,omitempty" yaml:"name"`
	// Synonyms is a semicolon-delimited list, as NAMASTE distributes it.
	Synonyms string `json:"synonyms,omitempty" yaml:"synonyms"`
	System   string `json:"system,omitempty" yaml:"system"`
}

// TM2Record is the ICD-11 Traditional Medicine chapter 2 bridge concept.
type TM2Record struct {
	Title             string   `json:"tm2Title,omitempty" yaml:"tm2Title"`
	Description       string   `json:"description,omitempty" yaml:"description"`
	Synonyms          []string `json:"synonyms,omitempty" yaml:"synonyms"`
	Keywords          []string `json:"keywords,omitempty" yaml:"keywords"`
	TraditionalSystem string   `json:"traditionalSystem,omitempty" yaml:"traditionalSystem"`
	TherapeuticArea   string   `json:"therapeuticArea,omitempty" yaml:"therapeuticArea"`
}

// ICDRecord is the ICD-11 target concept.
type ICDRecord struct {
	Title       string   `json:"title,omitempty" yaml:"title"`
	Name        string   `json:"name,omitempty" yaml:"name"`
	Display     string   `json:"display,omitempty" yaml:"display"`
	Synonyms    []string `json:"synonyms,omitempty" yaml:"synonyms"`
	Description string   `json:"description,omitempty" yaml:"description"`
}

// Terms returns the non-empty comparable strings of the record: display,
// English name, name and each trimmed synonym.
func (n NamasteRecord) Terms() []string {
	terms := nonEmpty(n.Display, n.EnglishName, n.Name)
	if n.Synonyms != "" {
		for _, s := range strings.Split(n.Synonyms, ";") {
			if s = strings.TrimSpace(s); s != "" {
				terms = append(terms, s)
			}
		}
	}
	return terms
}

// Terms returns title, description, synonyms and keywords, skipping empties.
func (t TM2Record) Terms() []string {
	terms := nonEmpty(t.Title, t.Description)
	terms = append(terms, nonEmpty(t.Synonyms...)...)
	return append(terms, nonEmpty(t.Keywords...)...)
}

// Terms returns title, name, display, synonyms and description, skipping empties.
func (i ICDRecord) Terms() []string {
	terms := nonEmpty(i.Title, i.Name, i.Display)
	terms = append(terms, nonEmpty(i.Synonyms...)...)
	return append(terms, nonEmpty(i.Description)...)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
