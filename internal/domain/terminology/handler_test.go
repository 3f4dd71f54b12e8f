package terminology

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/namaste/tmbridge/internal/platform/auth"
	"github.com/namaste/tmbridge/internal/platform/fhir"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func expectHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != want {
		t.Errorf("expected status %d, got %d", want, he.Code)
	}
}

// =========== Search / Get Handler Tests ===========

func TestHandler_SearchNamaste_Success(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminology/namaste?q=jwara", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchNamaste(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var results []*NamasteCode
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 || results[0].Code != "AYU-001" {
		t.Errorf("expected AYU-001, got %v", results)
	}
}

func TestHandler_SearchNamaste_NoMatchesIsEmptyArray(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminology/namaste?q=zzz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchNamaste(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestHandler_SearchNamaste_MissingQuery(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminology/namaste", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	expectHTTPStatus(t, h.SearchNamaste(c), http.StatusBadRequest)
}

func TestHandler_SearchTM2_Success(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminology/tm2?q=fever", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchTM2(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_SearchICD11_Success(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminology/icd11?q=diabetes&limit=5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchICD11(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var results []*ICD11Code
	json.Unmarshal(rec.Body.Bytes(), &results)
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestHandler_GetTM2_Success(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues("SK01")

	if err := h.GetTM2(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var code TM2Code
	json.Unmarshal(rec.Body.Bytes(), &code)
	if code.PatternType != PatternPatterns {
		t.Errorf("expected pattern type %s, got %s", PatternPatterns, code.PatternType)
	}
}

func TestHandler_GetICD11_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues("XX99")

	expectHTTPStatus(t, h.GetICD11(c), http.StatusNotFound)
}

func TestHandler_GetICD11_RepoFailure(t *testing.T) {
	icd := newMockICD11Repo()
	icd.err = errors.New("pool closed")
	h := NewHandler(NewService(newMockNamasteRepo(), newMockTM2Repo(), icd))
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues("5A11")

	expectHTTPStatus(t, h.GetICD11(c), http.StatusInternalServerError)
}

// =========== ValueSet $expand Tests ===========

func TestHandler_ExpandValueSet_Success(t *testing.T) {
	h, e := newTestHandler()

	q := url.Values{"url": {SystemICD11}, "filter": {"fever"}}
	req := httptest.NewRequest(http.MethodGet, "/fhir/ValueSet/$expand?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ExpandValueSet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var vs struct {
		ResourceType string `json:"resourceType"`
		Expansion    struct {
			Total    int           `json:"total"`
			Contains []fhir.Coding `json:"contains"`
		} `json:"expansion"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &vs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if vs.ResourceType != "ValueSet" {
		t.Errorf("expected ValueSet, got %s", vs.ResourceType)
	}
	if vs.Expansion.Total != 1 || vs.Expansion.Contains[0].Code != "MG26" {
		t.Errorf("unexpected expansion: %+v", vs.Expansion)
	}
}

func TestHandler_ExpandValueSet_MissingParams(t *testing.T) {
	h, e := newTestHandler()

	for _, target := range []string{
		"/fhir/ValueSet/$expand?filter=fever",
		"/fhir/ValueSet/$expand?url=" + url.QueryEscape(SystemTM2),
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := h.ExpandValueSet(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
		var oo fhir.OperationOutcome
		json.Unmarshal(rec.Body.Bytes(), &oo)
		if !oo.HasErrors() {
			t.Errorf("%s: expected OperationOutcome with errors", target)
		}
	}
}

func TestHandler_ExpandValueSet_UnsupportedSystem(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/fhir/ValueSet/$expand?url=urn:other&filter=x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ExpandValueSet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// =========== TM2 Hierarchy / Batch Handler Tests ===========

func TestHandler_TM2Children(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("code")
	c.SetParamValues("SK00")
	if err := h.TM2Children(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var children []*TM2Code
	if err := json.Unmarshal(rec.Body.Bytes(), &children); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(children) != 1 || children[0].Parent != "SK00" {
		t.Errorf("unexpected children %v", children)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("code")
	c.SetParamValues("SK01")
	if err := h.TM2Children(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array for a leaf, got %q", body)
	}
}

func TestHandler_TM2Stats(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/terminology/tm2/stats/overview", nil), rec)

	if err := h.TM2Stats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st TM2Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Total != 2 || len(st.BySystem) == 0 || len(st.ByTherapeuticArea) == 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestHandler_StatsRouteIsNotACode(t *testing.T) {
	h, e := newTestHandler()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.ContextWithPrincipal(c.Request().Context(), "dr-1", []string{auth.RoleDoctor})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/terminology/tm2/stats/overview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st TM2Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil || st.Total != 2 {
		t.Errorf("expected stats body, got %s", rec.Body.String())
	}
}

func TestHandler_ValidateCodes(t *testing.T) {
	h, e := newTestHandler()
	body := `{"codes":[{"system":"` + SystemNAMASTE + `","code":"AYU-002"},{"code":"ZZ99"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/terminology/validate-codes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.ValidateCodes(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res BatchValidation
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 2 || res.Valid != 1 || res.Invalid != 1 {
		t.Errorf("unexpected batch result %+v", res)
	}
	if res.Results[0].Display != "Prameha" {
		t.Errorf("expected display Prameha, got %+v", res.Results[0])
	}
}

func TestHandler_ValidateCodes_BadBody(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"codes":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectHTTPStatus(t, h.ValidateCodes(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"codes":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectHTTPStatus(t, h.ValidateCodes(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_RegisterCapabilities(t *testing.T) {
	h, _ := newTestHandler()
	b := fhir.NewCapabilityBuilder("http://localhost:8000/fhir", "dev")
	h.RegisterCapabilities(b)

	types := b.ResourceTypes()
	if len(types) != 2 || types[0] != "CodeSystem" || types[1] != "ValueSet" {
		t.Errorf("unexpected resource types %v", types)
	}
}

// =========== Route Registration Tests ===========

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")
	h.RegisterRoutes(api, fhirGroup)

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	expected := []string{
		"GET /api/v1/terminology/namaste",
		"GET /api/v1/terminology/namaste/:code",
		"GET /api/v1/terminology/tm2",
		"GET /api/v1/terminology/tm2/:code",
		"GET /api/v1/terminology/tm2/:code/children",
		"GET /api/v1/terminology/tm2/stats/overview",
		"POST /api/v1/terminology/validate-codes",
		"GET /api/v1/terminology/icd11",
		"GET /api/v1/terminology/icd11/:code",
		"GET /fhir/CodeSystem/$lookup",
		"POST /fhir/CodeSystem/$lookup",
		"GET /fhir/CodeSystem/$validate-code",
		"POST /fhir/CodeSystem/$validate-code",
		"GET /fhir/ValueSet/$expand",
	}
	for _, path := range expected {
		if !routes[path] {
			t.Errorf("missing route: %s", path)
		}
	}
}

func TestHandler_RoutesRequireReaderRole(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/terminology/namaste?q=jwara", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without a principal, got %d", rec.Code)
	}

	e2 := echo.New()
	e2.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.ContextWithPrincipal(c.Request().Context(), "dr-1", []string{auth.RoleDoctor})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(e2.Group("/api/v1"), e2.Group("/fhir"))
	rec = httptest.NewRecorder()
	e2.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/terminology/namaste?q=jwara", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for doctor, got %d", rec.Code)
	}
}
