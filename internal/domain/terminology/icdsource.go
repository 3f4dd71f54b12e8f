package terminology

import (
	"context"
	"errors"

	"github.com/namaste/tmbridge/internal/platform/icdapi"
)

// ICDSource serves WHO ICD-API lookups from the ingested ICD-11 table when
// no WHO credentials are configured.
type ICDSource struct {
	svc *Service
}

func NewICDSource(svc *Service) *ICDSource {
	return &ICDSource{svc: svc}
}

func (s *ICDSource) Entity(ctx context.Context, code string) (*icdapi.Entity, error) {
	c, err := s.svc.LookupICD11(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, icdapi.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &icdapi.Entity{
		Code:       c.Code,
		Title:      c.Title,
		Definition: c.Description,
		Synonyms:   c.Synonyms,
		Source:     icdapi.SourceLocal,
	}, nil
}

func (s *ICDSource) Search(ctx context.Context, query string, limit int) ([]icdapi.SearchHit, error) {
	codes, err := s.svc.SearchICD11(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]icdapi.SearchHit, 0, len(codes))
	for _, c := range codes {
		hits = append(hits, icdapi.SearchHit{Code: c.Code, Title: c.Title})
	}
	return hits, nil
}
