package icdapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/namaste/tmbridge/internal/platform/auth"
)

func newTestServer(c *Client) *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.ContextWithPrincipal(c.Request().Context(), "dr-1", []string{auth.RoleDoctor})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(c).RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))
	return e
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(validationClient()).RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/who/health",
		"GET /api/v1/who/entity/:code",
		"GET /api/v1/who/search",
		"POST /api/v1/who/validate-mapping",
	} {
		if !routes[want] {
			t.Errorf("missing route %s", want)
		}
	}
}

func TestHandler_GetEntity(t *testing.T) {
	e := newTestServer(validationClient())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/who/entity/8A80", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got Entity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got.Title != "Migraine" {
		t.Errorf("unexpected entity %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/who/entity/XX00", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_Search(t *testing.T) {
	e := newTestServer(validationClient())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/who/search?q=fever&limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var hits []SearchHit
	if err := json.Unmarshal(rec.Body.Bytes(), &hits); err != nil || len(hits) != 2 {
		t.Errorf("expected 2 hits, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/who/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without q, got %d", rec.Code)
	}
}

func TestHandler_ValidateMapping(t *testing.T) {
	e := newTestServer(validationClient())

	body := `{"namaste_code":"AAE-1","namaste_display":"Jwara","icd_code":"MG26"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/who/validate-mapping", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var v Validation
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Valid || v.NamasteCode != "AAE-1" {
		t.Errorf("unexpected validation %+v", v)
	}
}

func TestHandler_HealthUnavailable(t *testing.T) {
	e := newTestServer(NewClient(Config{}, zerolog.Nop()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/who/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("icd-api status 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		if !errors.As(httpError(tt.err), &he) || he.Code != tt.want {
			t.Errorf("httpError(%v): expected %d", tt.err, tt.want)
		}
	}
}
