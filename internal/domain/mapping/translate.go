package mapping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/namaste/tmbridge/internal/domain/scoring"
	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/fhir"
)

// Translate implements ConceptMap/$translate from NAMASTE to ICD-11 (the
// default target) or to the TM2 bridge. Matches are ordered by confidence,
// best first, with one match per target code.
func (s *Service) Translate(ctx context.Context, req fhir.TranslateRequest) (*fhir.TranslateResponse, error) {
	if req.System != terminology.SystemNAMASTE {
		return nil, fmt.Errorf("%w: source system %s", fhir.ErrUnsupportedSystem, req.System)
	}
	if req.ConceptMapURL != "" && req.ConceptMapURL != ConceptMapURL {
		return nil, fmt.Errorf("%w: concept map %s", fhir.ErrUnsupportedSystem, req.ConceptMapURL)
	}
	target := req.TargetSystem
	if target == "" {
		target = terminology.SystemICD11
	}
	if target != terminology.SystemICD11 && target != terminology.SystemTM2 {
		return nil, fmt.Errorf("%w: target system %s", fhir.ErrUnsupportedSystem, target)
	}

	ms, err := s.repo.FindByNamaste(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("finding mappings for %s: %w", req.Code, err)
	}

	matches := translateMatches(ms, target)
	if len(matches) == 0 {
		return &fhir.TranslateResponse{
			Result:  false,
			Message: fmt.Sprintf("no mapping found for code '%s'", req.Code),
		}, nil
	}
	return &fhir.TranslateResponse{
		Result:  true,
		Message: fmt.Sprintf("%d mapping(s) found for code '%s'", len(matches), req.Code),
		Matches: matches,
	}, nil
}

func translateMatches(ms []*Mapping, target string) []fhir.TranslateMatch {
	best := map[string]fhir.TranslateMatch{}
	for _, m := range ms {
		var match fhir.TranslateMatch
		if target == terminology.SystemTM2 {
			match = fhir.TranslateMatch{
				Equivalence: scoring.Equivalence(m.TM2Confidence),
				Code:        m.TM2Code,
				Display:     m.TM2Title,
				Confidence:  m.TM2Confidence,
			}
		} else {
			match = fhir.TranslateMatch{
				Equivalence: m.Equivalence,
				Code:        m.ICDCode,
				Display:     m.ICDTitle,
				Confidence:  m.OverallConfidence,
			}
		}
		match.System = target
		match.Source = ConceptMapURL
		if prev, ok := best[match.Code]; !ok || match.Confidence > prev.Confidence {
			best[match.Code] = match
		}
	}

	out := make([]fhir.TranslateMatch, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// ConceptMap renders every stored mapping (or only curator-approved ones) as
// the namaste-to-icd11 ConceptMap resource.
func (s *Service) ConceptMap(ctx context.Context, approvedOnly bool) (map[string]interface{}, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	ms := all[:0:0]
	var updated time.Time
	for _, m := range all {
		if approvedOnly && !m.CuratorApproved {
			continue
		}
		ms = append(ms, m)
		if m.UpdatedAt.After(updated) {
			updated = m.UpdatedAt
		}
	}
	if updated.IsZero() {
		updated = s.now().UTC()
	}

	cm := newConceptMap("namaste-to-icd11", updated)
	cm["group"] = groupsFor(ms)
	return cm, nil
}
