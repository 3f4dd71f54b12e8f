package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/namaste/tmbridge/internal/platform/fhir"
)

// ErrInvalidInput marks caller errors (missing query or code).
var ErrInvalidInput = errors.New("invalid input")

// Service provides terminology search, lookup and validation.
type Service struct {
	namaste NamasteRepository
	tm2     TM2Repository
	icd11   ICD11Repository
}

func NewService(namaste NamasteRepository, tm2 TM2Repository, icd11 ICD11Repository) *Service {
	return &Service{namaste: namaste, tm2: tm2, icd11: icd11}
}

func requireQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query parameter is required", ErrInvalidInput)
	}
	return nil
}

func requireCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	return nil
}

// -- NAMASTE --

func (s *Service) SearchNamaste(ctx context.Context, query string, limit int) ([]*NamasteCode, error) {
	if err := requireQuery(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.namaste.Search(ctx, query, limit)
}

func (s *Service) LookupNamaste(ctx context.Context, code string) (*NamasteCode, error) {
	if err := requireCode(code); err != nil {
		return nil, err
	}
	return s.namaste.GetByCode(ctx, code)
}

// -- TM2 --

func (s *Service) SearchTM2(ctx context.Context, query string, limit int) ([]*TM2Code, error) {
	if err := requireQuery(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.tm2.Search(ctx, query, limit)
}

func (s *Service) LookupTM2(ctx context.Context, code string) (*TM2Code, error) {
	if err := requireCode(code); err != nil {
		return nil, err
	}
	return s.tm2.GetByCode(ctx, code)
}

// TM2Children lists the direct children of a TM2 code. An unknown parent
// yields an empty list.
func (s *Service) TM2Children(ctx context.Context, parent string) ([]*TM2Code, error) {
	if err := requireCode(parent); err != nil {
		return nil, err
	}
	return s.tm2.Children(ctx, parent)
}

func (s *Service) TM2Stats(ctx context.Context) (*TM2Stats, error) {
	return s.tm2.Stats(ctx)
}

// -- ICD-11 --

func (s *Service) SearchICD11(ctx context.Context, query string, limit int) ([]*ICD11Code, error) {
	if err := requireQuery(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.icd11.Search(ctx, query, limit)
}

func (s *Service) LookupICD11(ctx context.Context, code string) (*ICD11Code, error) {
	if err := requireCode(code); err != nil {
		return nil, err
	}
	return s.icd11.GetByCode(ctx, code)
}

// -- FHIR Operations --

// Lookup implements CodeSystem/$lookup for the NAMASTE, TM2 and ICD-11 systems.
func (s *Service) Lookup(ctx context.Context, req fhir.LookupRequest) (*fhir.LookupResult, error) {
	if err := requireCode(req.Code); err != nil {
		return nil, err
	}

	switch req.System {
	case SystemNAMASTE:
		c, err := s.namaste.GetByCode(ctx, req.Code)
		if err != nil {
			return nil, lookupErr(err)
		}
		res := &fhir.LookupResult{Name: "NAMASTE", Display: c.Display}
		res.Designation = append(nonBlank(c.EnglishName, c.Name), splitSynonyms(c.Synonyms)...)
		if c.System != "" {
			res.Property = append(res.Property, fhir.LookupProperty{Code: "system", Value: c.System})
		}
		return res, nil
	case SystemTM2:
		c, err := s.tm2.GetByCode(ctx, req.Code)
		if err != nil {
			return nil, lookupErr(err)
		}
		res := &fhir.LookupResult{Name: "ICD-11 TM2", Display: c.Title, Designation: c.Synonyms}
		for _, p := range []fhir.LookupProperty{
			{Code: "parent", Value: c.Parent},
			{Code: "kind", Value: c.ClassKind},
			{Code: "traditionalSystem", Value: c.TraditionalSystem},
			{Code: "therapeuticArea", Value: c.TherapeuticArea},
			{Code: "patternType", Value: c.PatternType},
		} {
			if p.Value != "" {
				res.Property = append(res.Property, p)
			}
		}
		return res, nil
	case SystemICD11:
		c, err := s.icd11.GetByCode(ctx, req.Code)
		if err != nil {
			return nil, lookupErr(err)
		}
		res := &fhir.LookupResult{Name: "ICD-11 MMS", Display: c.Title, Designation: c.Synonyms}
		if c.Parent != "" {
			res.Property = append(res.Property, fhir.LookupProperty{Code: "parent", Value: c.Parent})
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s", fhir.ErrUnsupportedSystem, req.System)
}

// ValidateCode implements CodeSystem/$validate-code. An unknown code is a
// negative result, not an error. A display that differs from the stored one
// is reported in the message.
func (s *Service) ValidateCode(ctx context.Context, req fhir.ValidateCodeRequest) (*fhir.ValidateCodeResult, error) {
	res, err := s.Lookup(ctx, fhir.LookupRequest{System: req.System, Code: req.Code})
	if errors.Is(err, fhir.ErrCodeNotFound) {
		return &fhir.ValidateCodeResult{
			Result:  false,
			Message: fmt.Sprintf("code '%s' not found in system '%s'", req.Code, req.System),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &fhir.ValidateCodeResult{Result: true, Display: res.Display}
	if req.Display != "" && !strings.EqualFold(req.Display, res.Display) {
		out.Result = false
		out.Message = fmt.Sprintf("display '%s' does not match '%s'", req.Display, res.Display)
	}
	return out, nil
}

// MaxBatchCodes bounds a single ValidateCodes call.
const MaxBatchCodes = 500

// CodeRef names a code in one of the served systems. Without a system the
// code is tried against NAMASTE, TM2 and ICD-11 in that order.
type CodeRef struct {
	System string `json:"system,omitempty"`
	Code   string `json:"code"`
}

type CodeValidation struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Valid   bool   `json:"valid"`
	Display string `json:"display,omitempty"`
	Message string `json:"message,omitempty"`
}

type BatchValidation struct {
	Total   int              `json:"total"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
	Results []CodeValidation `json:"results"`
}

// ValidateCodes checks a batch of codes. Unknown codes and unsupported
// systems are reported per entry; only repository failures abort the batch.
func (s *Service) ValidateCodes(ctx context.Context, refs []CodeRef) (*BatchValidation, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: codes must not be empty", ErrInvalidInput)
	}
	if len(refs) > MaxBatchCodes {
		return nil, fmt.Errorf("%w: at most %d codes per request, got %d", ErrInvalidInput, MaxBatchCodes, len(refs))
	}

	out := &BatchValidation{Total: len(refs), Results: make([]CodeValidation, 0, len(refs))}
	for _, ref := range refs {
		v, err := s.validateRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		if v.Valid {
			out.Valid++
		} else {
			out.Invalid++
		}
		out.Results = append(out.Results, v)
	}
	return out, nil
}

func (s *Service) validateRef(ctx context.Context, ref CodeRef) (CodeValidation, error) {
	ref.Code = strings.TrimSpace(ref.Code)
	v := CodeValidation{System: ref.System, Code: ref.Code}
	if ref.Code == "" {
		v.Message = "code is required"
		return v, nil
	}

	systems := []string{ref.System}
	if ref.System == "" {
		systems = []string{SystemNAMASTE, SystemTM2, SystemICD11}
	}
	for _, system := range systems {
		res, err := s.ValidateCode(ctx, fhir.ValidateCodeRequest{System: system, Code: ref.Code})
		if errors.Is(err, fhir.ErrUnsupportedSystem) {
			v.Message = fmt.Sprintf("unsupported system '%s'", system)
			return v, nil
		}
		if err != nil {
			return v, err
		}
		if res.Result {
			v.System = system
			v.Valid = true
			v.Display = res.Display
			v.Message = ""
			return v, nil
		}
		v.Message = res.Message
	}
	if ref.System == "" {
		v.Message = fmt.Sprintf("code '%s' not found in any system", ref.Code)
	}
	return v, nil
}

// Expand searches one system and returns system-neutral results.
func (s *Service) Expand(ctx context.Context, system, filter string, limit int) ([]SearchResult, error) {
	var out []SearchResult
	switch system {
	case SystemNAMASTE:
		codes, err := s.SearchNamaste(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		for _, c := range codes {
			out = append(out, SearchResult{Code: c.Code, Display: c.Display, SystemURI: system})
		}
	case SystemTM2:
		codes, err := s.SearchTM2(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		for _, c := range codes {
			out = append(out, SearchResult{Code: c.Code, Display: c.Title, SystemURI: system})
		}
	case SystemICD11:
		codes, err := s.SearchICD11(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		for _, c := range codes {
			out = append(out, SearchResult{Code: c.Code, Display: c.Title, SystemURI: system})
		}
	default:
		return nil, fmt.Errorf("%w: %s", fhir.ErrUnsupportedSystem, system)
	}
	return out, nil
}

func lookupErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %v", fhir.ErrCodeNotFound, err)
	}
	return err
}

func splitSynonyms(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nonBlank(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
