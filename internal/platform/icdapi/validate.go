package icdapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/namaste/tmbridge/internal/domain/scoring"
)

const (
	validThreshold  = 0.3
	maxAlternatives = 3
)

type ValidateRequest struct {
	NamasteCode    string `json:"namaste_code"`
	NamasteDisplay string `json:"namaste_display"`
	ICDCode        string `json:"icd_code"`
	// ICDTitle is only used when the entity has no title of its own.
	ICDTitle string `json:"icd_title,omitempty"`
}

type Alternative struct {
	Code       string  `json:"code"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// Validation is the verdict on a proposed NAMASTE to ICD-11 pairing,
// checked against the ICD-11 entity's title and synonyms.
type Validation struct {
	NamasteCode  string        `json:"namaste_code"`
	ICDCode      string        `json:"icd_code"`
	Valid        bool          `json:"valid"`
	Confidence   float64       `json:"confidence"`
	Reason       string        `json:"reason"`
	Entity       *Entity       `json:"entity,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	ValidatedAt  time.Time     `json:"validated_at"`
}

// ValidateMapping looks up req.ICDCode and scores its title against the
// NAMASTE display. An unknown code is reported as invalid, not as an error.
func (c *Client) ValidateMapping(ctx context.Context, req ValidateRequest) (*Validation, error) {
	req.NamasteDisplay = strings.TrimSpace(req.NamasteDisplay)
	req.ICDCode = strings.TrimSpace(req.ICDCode)
	if req.NamasteDisplay == "" || req.ICDCode == "" {
		return nil, fmt.Errorf("%w: namaste_display and icd_code are required", ErrInvalidInput)
	}

	v := &Validation{
		NamasteCode: req.NamasteCode,
		ICDCode:     req.ICDCode,
		ValidatedAt: time.Now().UTC(),
	}

	entity, err := c.Entity(ctx, req.ICDCode)
	switch {
	case errors.Is(err, ErrNotFound):
		v.Reason = "ICD-11 code not found"
		return v, nil
	case err != nil:
		return nil, err
	}
	if entity.Title == "" {
		entity.Title = req.ICDTitle
	}
	v.Entity = entity

	v.Confidence = scoring.SemanticSimilarity(req.NamasteDisplay, entity.Title, nil, entity.Synonyms)
	v.Valid = v.Confidence > validThreshold
	v.Reason = validationReason(v.Confidence)

	alts, err := c.alternatives(ctx, req.NamasteDisplay, entity.Code)
	if err != nil {
		c.logger.Warn().Err(err).Str("namaste_code", req.NamasteCode).Msg("alternative lookup failed")
	}
	v.Alternatives = alts
	return v, nil
}

func validationReason(confidence float64) string {
	switch {
	case confidence > 0.7:
		return "high semantic similarity"
	case confidence > 0.5:
		return "moderate semantic similarity"
	case confidence > validThreshold:
		return "low semantic similarity"
	default:
		return "poor semantic match"
	}
}

// alternatives returns the best other ICD-11 codes for display, excluding
// the code under validation.
func (c *Client) alternatives(ctx context.Context, display, exclude string) ([]Alternative, error) {
	hits, err := c.Search(ctx, display, maxAlternatives+1)
	if err != nil {
		return nil, err
	}
	out := make([]Alternative, 0, len(hits))
	for _, h := range hits {
		if strings.EqualFold(h.Code, exclude) {
			continue
		}
		out = append(out, Alternative{
			Code:       h.Code,
			Title:      h.Title,
			Similarity: scoring.SemanticSimilarity(display, h.Title, nil, nil),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > maxAlternatives {
		out = out[:maxAlternatives]
	}
	return out, nil
}
