package mapping

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/icdapi"
)

type stubValidator struct {
	mu   sync.Mutex
	reqs []icdapi.ValidateRequest
	err  error
}

func (v *stubValidator) ValidateMapping(_ context.Context, req icdapi.ValidateRequest) (*icdapi.Validation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reqs = append(v.reqs, req)
	if v.err != nil {
		return nil, v.err
	}
	return &icdapi.Validation{
		NamasteCode: req.NamasteCode,
		ICDCode:     req.ICDCode,
		Valid:       req.ICDCode == "MG26",
	}, nil
}

func seedJwara(t *testing.T, svc *Service) {
	t.Helper()
	for _, req := range []ScoreRequest{
		feverChain,
		{NamasteCode: "AYU-JW", TM2Code: "SM00", ICDCode: "8A80"},
	} {
		if _, err := svc.Score(context.Background(), req); err != nil {
			t.Fatalf("seed %v: %v", req, err)
		}
	}
}

func TestSearchWithMappings(t *testing.T) {
	svc, _, _ := newTestService()
	seedJwara(t, svc)

	res, err := svc.SearchWithMappings(context.Background(), "jwara", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 1 || res[0].Code != "AYU-JW" || res[0].System != "Ayurveda" {
		t.Fatalf("expected AYU-JW, got %+v", res)
	}
	if len(res[0].Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(res[0].Mappings))
	}
	if res[0].Mappings[0].OverallConfidence < res[0].Mappings[1].OverallConfidence {
		t.Error("expected mappings best first")
	}
}

func TestSearchWithMappings_UnmappedCode(t *testing.T) {
	svc, _, _ := newTestService()
	seedJwara(t, svc)

	res, err := svc.SearchWithMappings(context.Background(), "diabetes", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 1 || res[0].Code != "AYU-PR" {
		t.Fatalf("expected AYU-PR by english name, got %+v", res)
	}
	if res[0].Mappings == nil || len(res[0].Mappings) != 0 {
		t.Errorf("expected an empty mapping list, got %v", res[0].Mappings)
	}
}

func TestSearchWithMappings_ShortTerm(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.err = errors.New("must not be called")

	for _, term := range []string{"", " ", "j", " j "} {
		res, err := svc.SearchWithMappings(context.Background(), term, 10)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", term, err)
		}
		if res == nil || len(res) != 0 {
			t.Errorf("%q: expected empty result, got %v", term, res)
		}
	}
}

func TestSearchWithMappings_RepoError(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.err = errors.New("db down")

	if _, err := svc.SearchWithMappings(context.Background(), "jwara", 5); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestValidateStored(t *testing.T) {
	svc, _, _ := newTestService()
	seedJwara(t, svc)
	v := &stubValidator{}

	res, err := svc.ValidateStored(context.Background(), "AYU-JW", v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 || len(v.reqs) != 2 {
		t.Fatalf("expected 2 validations, got %d (%d calls)", len(res), len(v.reqs))
	}
	for _, r := range res {
		if r.Validation.ICDCode != r.ICDCode {
			t.Errorf("validation %s attached to mapping %s", r.Validation.ICDCode, r.ICDCode)
		}
		if r.Validation.Valid != (r.ICDCode == "MG26") {
			t.Errorf("unexpected verdict for %s", r.ICDCode)
		}
	}
	for _, req := range v.reqs {
		if req.NamasteDisplay != "Jwara" {
			t.Errorf("expected NAMASTE display Jwara, got %q", req.NamasteDisplay)
		}
	}
}

func TestValidateStored_Errors(t *testing.T) {
	svc, _, _ := newTestService()
	seedJwara(t, svc)

	if _, err := svc.ValidateStored(context.Background(), " ", &stubValidator{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.ValidateStored(context.Background(), "AYU-XX", &stubValidator{}); !errors.Is(err, terminology.ErrNotFound) {
		t.Errorf("expected terminology.ErrNotFound, got %v", err)
	}

	boom := errors.New("who unavailable")
	if _, err := svc.ValidateStored(context.Background(), "AYU-JW", &stubValidator{err: boom}); !errors.Is(err, boom) {
		t.Errorf("expected validator error, got %v", err)
	}
}
