package mapping

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/icdapi"
)

const (
	minSearchTerm      = 2
	defaultSearchLimit = 12
	maxSearchLimit     = 50
	lookupConcurrency  = 4
)

// CodeWithMappings is a NAMASTE search hit together with its stored chains,
// best first.
type CodeWithMappings struct {
	Code        string     `json:"code"`
	Display     string     `json:"display"`
	EnglishName string     `json:"english_name,omitempty"`
	System      string     `json:"system,omitempty"`
	Synonyms    string     `json:"synonyms,omitempty"`
	Mappings    []*Mapping `json:"mappings"`
}

// SearchWithMappings searches NAMASTE and attaches each hit's mappings.
// Terms shorter than two characters return nothing.
func (s *Service) SearchWithMappings(ctx context.Context, term string, limit int) ([]CodeWithMappings, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchTerm {
		return []CodeWithMappings{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	codes, err := s.terms.SearchNamaste(ctx, term, limit)
	if err != nil {
		return nil, err
	}

	out := make([]CodeWithMappings, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, c := range codes {
		i, c := i, c
		g.Go(func() error {
			ms, err := s.repo.FindByNamaste(gctx, c.Code)
			if err != nil {
				return fmt.Errorf("mappings of %s: %w", c.Code, err)
			}
			out[i] = withMappings(c, ms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func withMappings(c *terminology.NamasteCode, ms []*Mapping) CodeWithMappings {
	if ms == nil {
		ms = []*Mapping{}
	}
	return CodeWithMappings{
		Code:        c.Code,
		Display:     c.Display,
		EnglishName: c.EnglishName,
		System:      c.System,
		Synonyms:    c.Synonyms,
		Mappings:    ms,
	}
}

// Validator checks a NAMASTE to ICD-11 pairing against the WHO ICD-API.
type Validator interface {
	ValidateMapping(ctx context.Context, req icdapi.ValidateRequest) (*icdapi.Validation, error)
}

type ValidatedMapping struct {
	*Mapping
	Validation *icdapi.Validation `json:"who_validation"`
}

// ValidateStored runs every stored mapping of a NAMASTE code through v.
func (s *Service) ValidateStored(ctx context.Context, namasteCode string, v Validator) ([]ValidatedMapping, error) {
	namasteCode = strings.TrimSpace(namasteCode)
	if namasteCode == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	n, err := s.terms.LookupNamaste(ctx, namasteCode)
	if err != nil {
		return nil, err
	}
	ms, err := s.repo.FindByNamaste(ctx, namasteCode)
	if err != nil {
		return nil, err
	}

	out := make([]ValidatedMapping, len(ms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, m := range ms {
		i, m := i, m
		g.Go(func() error {
			res, err := v.ValidateMapping(gctx, icdapi.ValidateRequest{
				NamasteCode:    n.Code,
				NamasteDisplay: n.Display,
				ICDCode:        m.ICDCode,
				ICDTitle:       m.ICDTitle,
			})
			if err != nil {
				return fmt.Errorf("validating %s -> %s: %w", m.NamasteCode, m.ICDCode, err)
			}
			out[i] = ValidatedMapping{Mapping: m, Validation: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
