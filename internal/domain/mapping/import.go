package mapping

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxImportErrors caps the error strings kept in an ImportResult.
const maxImportErrors = 50

// ImportCandidates scores every (namaste_code, tm2_code, icd_code) row of a
// headered CSV. Rows that fail to score are counted and reported, and do not
// stop the import.
func (s *Service) ImportCandidates(ctx context.Context, r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading candidate header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"namaste_code", "tm2_code", "icd_code"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: candidate csv is missing column %q", ErrInvalidInput, required)
		}
	}
	field := func(rec []string, name string) string {
		if i := col[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	res := &ImportResult{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading candidates: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Read++

		_, err = s.Score(ctx, ScoreRequest{
			NamasteCode: field(rec, "namaste_code"),
			TM2Code:     field(rec, "tm2_code"),
			ICDCode:     field(rec, "icd_code"),
		})
		if err != nil {
			res.Failed++
			if len(res.Errors) < maxImportErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			}
			continue
		}
		res.Scored++
	}

	s.logger.Info().Int("read", res.Read).Int("scored", res.Scored).Int("failed", res.Failed).
		Msg("candidate import complete")
	return res, nil
}
