package terminology

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

const ingestBatchSize = 500

// IngestResult summarises one CSV load.
type IngestResult struct {
	Read     int `json:"read"`
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
}

// Ingester loads code-system CSV exports into the repositories.
type Ingester struct {
	namaste NamasteRepository
	tm2     TM2Repository
	icd11   ICD11Repository
	logger  zerolog.Logger
}

func NewIngester(namaste NamasteRepository, tm2 TM2Repository, icd11 ICD11Repository, logger zerolog.Logger) *Ingester {
	return &Ingester{namaste: namaste, tm2: tm2, icd11: icd11, logger: logger}
}

// csvRows reads a headered CSV into column-name maps. Header names are
// lowercased; every cell is trimmed and NFC-normalised.
func csvRows(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv: missing header row")
		}
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = cleanCell(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cleanCell(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// upsertChunks writes items in fixed-size batches.
func upsertChunks[T any](ctx context.Context, items []T, upsert func(context.Context, []T) (int, error)) (int, error) {
	total := 0
	for start := 0; start < len(items); start += ingestBatchSize {
		end := min(start+ingestBatchSize, len(items))
		n, err := upsert(ctx, items[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// IngestNamaste loads rows with columns code, display, system, synonyms and
// optionally english_name and name.
func (in *Ingester) IngestNamaste(ctx context.Context, r io.Reader) (IngestResult, error) {
	rows, err := csvRows(r)
	if err != nil {
		return IngestResult{}, fmt.Errorf("namaste csv: %w", err)
	}

	res := IngestResult{Read: len(rows)}
	codes := make([]*NamasteCode, 0, len(rows))
	for _, row := range rows {
		if row["code"] == "" || row["display"] == "" {
			res.Skipped++
			continue
		}
		codes = append(codes, &NamasteCode{
			Code:        row["code"],
			Display:     row["display"],
			EnglishName: row["english_name"],
			Name:        row["name"],
			System:      row["system"],
			Synonyms:    row["synonyms"],
		})
	}

	res.Upserted, err = upsertChunks(ctx, codes, in.namaste.Upsert)
	in.logResult("namaste", res, err)
	return res, err
}

// IngestTM2 loads rows with columns code, title, class_kind, parent and
// derives the traditional system, therapeutic area, pattern type, synonyms
// and keywords from the title.
func (in *Ingester) IngestTM2(ctx context.Context, r io.Reader) (IngestResult, error) {
	rows, err := csvRows(r)
	if err != nil {
		return IngestResult{}, fmt.Errorf("tm2 csv: %w", err)
	}

	res := IngestResult{Read: len(rows)}
	codes := make([]*TM2Code, 0, len(rows))
	for _, row := range rows {
		if row["code"] == "" || row["title"] == "" {
			res.Skipped++
			continue
		}
		codes = append(codes, NewTM2Code(row["code"], row["title"], row["class_kind"], row["parent"]))
	}

	res.Upserted, err = upsertChunks(ctx, codes, in.tm2.Upsert)
	in.logResult("tm2", res, err)
	return res, err
}

// IngestICD11 loads rows with columns code, title, class_kind, parent and
// optionally synonyms (semicolon separated), description and module.
func (in *Ingester) IngestICD11(ctx context.Context, r io.Reader) (IngestResult, error) {
	rows, err := csvRows(r)
	if err != nil {
		return IngestResult{}, fmt.Errorf("icd11 csv: %w", err)
	}

	res := IngestResult{Read: len(rows)}
	codes := make([]*ICD11Code, 0, len(rows))
	for _, row := range rows {
		if row["code"] == "" || row["title"] == "" {
			res.Skipped++
			continue
		}
		module := row["module"]
		if module == "" {
			module = "MMS"
		}
		codes = append(codes, &ICD11Code{
			Code:        row["code"],
			Title:       row["title"],
			ClassKind:   row["class_kind"],
			Parent:      row["parent"],
			Synonyms:    splitSynonyms(row["synonyms"]),
			Description: row["description"],
			Module:      module,
		})
	}

	res.Upserted, err = upsertChunks(ctx, codes, in.icd11.Upsert)
	in.logResult("icd11", res, err)
	return res, err
}

func (in *Ingester) logResult(system string, res IngestResult, err error) {
	if err != nil {
		in.logger.Error().Err(err).Str("system", system).Int("upserted", res.Upserted).Msg("ingest failed")
		return
	}
	in.logger.Info().Str("system", system).
		Int("read", res.Read).Int("upserted", res.Upserted).Int("skipped", res.Skipped).
		Msg("ingest complete")
}

// NewTM2Code builds a TM2 concept with metadata derived from its title.
func NewTM2Code(code, title, classKind, parent string) *TM2Code {
	if classKind == "" {
		classKind = ClassCategory
	}
	return &TM2Code{
		Code:              code,
		Title:             title,
		ClassKind:         classKind,
		Parent:            parent,
		TraditionalSystem: DeriveTraditionalSystem(title),
		TherapeuticArea:   DeriveTherapeuticArea(title),
		PatternType:       DerivePatternType(classKind, title),
		Synonyms:          ExtractSynonyms(title),
		Keywords:          ExtractKeywords(title),
		Description:       "Traditional medicine code for " + title,
		Active:            true,
	}
}

func DeriveTraditionalSystem(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "pitta"), strings.Contains(t, "kapha"), strings.Contains(t, "vata"):
		return "Ayurveda"
	case strings.Contains(t, "siddha"):
		return "Siddha"
	case strings.Contains(t, "unani"):
		return "Unani"
	}
	return "Mixed"
}

// areaRules are checked in order; the first hit wins.
var areaRules = []struct {
	area  string
	terms []string
}{
	{"Endocrine", []string{"diabetes", "prameha"}},
	{"Infectious", []string{"fever", "jwara"}},
	{"Musculoskeletal", []string{"arthritis", "sandhivata"}},
	{"Respiratory", []string{"cough", "peenisam"}},
	{"Digestive", []string{"dyspepsia", "amlapitta"}},
}

func DeriveTherapeuticArea(title string) string {
	t := strings.ToLower(title)
	for _, rule := range areaRules {
		for _, term := range rule.terms {
			if strings.Contains(t, term) {
				return rule.area
			}
		}
	}
	return "General"
}

func DerivePatternType(classKind, title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "pattern"), strings.Contains(t, "excess"):
		return PatternPatterns
	case strings.Contains(t, "disorder"), strings.Contains(t, "obstruction"):
		return PatternDisorders
	case classKind == ClassCategory:
		return PatternRoot
	}
	return PatternSymptoms
}

var (
	parenthesised = regexp.MustCompile(`\(([^)]+)\)`)
	keywordSep    = regexp.MustCompile(`[\s\-()]+`)
)

// ExtractSynonyms returns the contents of each parenthesised segment.
func ExtractSynonyms(title string) []string {
	var out []string
	for _, m := range parenthesised.FindAllStringSubmatch(title, -1) {
		out = append(out, m[1])
	}
	return out
}

// ExtractKeywords lowercases the title and keeps tokens longer than two runes.
func ExtractKeywords(title string) []string {
	var out []string
	for _, w := range keywordSep.Split(strings.ToLower(title), -1) {
		if utf8.RuneCountInString(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}
