package terminology

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/namaste/tmbridge/internal/platform/auth"
	"github.com/namaste/tmbridge/internal/platform/fhir"
	"github.com/namaste/tmbridge/pkg/pagination"
)

// Handler provides REST endpoints for terminology services.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers terminology routes on the API and FHIR groups.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	readers := auth.RequireRole(auth.RoleDoctor, auth.RoleCurator)

	termGroup := api.Group("/terminology", readers)
	termGroup.GET("/namaste", h.SearchNamaste)
	termGroup.GET("/namaste/:code", h.GetNamaste)
	termGroup.GET("/tm2", h.SearchTM2)
	termGroup.GET("/tm2/stats/overview", h.TM2Stats)
	termGroup.GET("/tm2/:code", h.GetTM2)
	termGroup.GET("/tm2/:code/children", h.TM2Children)
	termGroup.GET("/icd11", h.SearchICD11)
	termGroup.GET("/icd11/:code", h.GetICD11)
	termGroup.POST("/validate-codes", h.ValidateCodes)

	fhirTerm := fhirGroup.Group("", readers)
	fhir.NewLookupHandler(h.svc).RegisterRoutes(fhirTerm)
	fhirTerm.GET("/ValueSet/$expand", h.ExpandValueSet)
}

// RegisterCapabilities declares the FHIR operations served above.
func (h *Handler) RegisterCapabilities(b *fhir.CapabilityBuilder) {
	b.AddResource("CodeSystem", nil, nil,
		fhir.OperationDef{Name: "lookup", Definition: "http://hl7.org/fhir/OperationDefinition/CodeSystem-lookup"},
		fhir.OperationDef{Name: "validate-code", Definition: "http://hl7.org/fhir/OperationDefinition/CodeSystem-validate-code"},
	)
	b.AddResource("ValueSet", nil, nil,
		fhir.OperationDef{Name: "expand", Definition: "http://hl7.org/fhir/OperationDefinition/ValueSet-expand"},
	)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// SearchNamaste handles GET /api/v1/terminology/namaste?q=...
func (h *Handler) SearchNamaste(c echo.Context) error {
	results, err := h.svc.SearchNamaste(c.Request().Context(), c.QueryParam("q"), pagination.FromContext(c).Limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, nonNil(results))
}

func (h *Handler) GetNamaste(c echo.Context) error {
	code, err := h.svc.LookupNamaste(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, code)
}

// SearchTM2 handles GET /api/v1/terminology/tm2?q=...
func (h *Handler) SearchTM2(c echo.Context) error {
	results, err := h.svc.SearchTM2(c.Request().Context(), c.QueryParam("q"), pagination.FromContext(c).Limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, nonNil(results))
}

func (h *Handler) GetTM2(c echo.Context) error {
	code, err := h.svc.LookupTM2(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, code)
}

// TM2Children handles GET /api/v1/terminology/tm2/:code/children
func (h *Handler) TM2Children(c echo.Context) error {
	children, err := h.svc.TM2Children(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, nonNil(children))
}

func (h *Handler) TM2Stats(c echo.Context) error {
	st, err := h.svc.TM2Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// SearchICD11 handles GET /api/v1/terminology/icd11?q=...
func (h *Handler) SearchICD11(c echo.Context) error {
	results, err := h.svc.SearchICD11(c.Request().Context(), c.QueryParam("q"), pagination.FromContext(c).Limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, nonNil(results))
}

func (h *Handler) GetICD11(c echo.Context) error {
	code, err := h.svc.LookupICD11(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, code)
}

// ValidateCodes handles POST /api/v1/terminology/validate-codes with a body
// of {"codes": [{"system": "...", "code": "..."}]}.
func (h *Handler) ValidateCodes(c echo.Context) error {
	var body struct {
		Codes []CodeRef `json:"codes"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.ValidateCodes(c.Request().Context(), body.Codes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ExpandValueSet handles GET /fhir/ValueSet/$expand?url=<system>&filter=...
// The implicit value set of each code system is addressed by its URI.
func (h *Handler) ExpandValueSet(c echo.Context) error {
	system := c.QueryParam("url")
	filter := c.QueryParam("filter")
	if system == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("url"))
	}
	if filter == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("filter"))
	}

	results, err := h.svc.Expand(c.Request().Context(), system, filter, pagination.FromContext(c).Limit)
	if err != nil {
		if errors.Is(err, fhir.ErrUnsupportedSystem) {
			return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotFound, err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	contains := make([]fhir.Coding, 0, len(results))
	for _, r := range results {
		contains = append(contains, fhir.Coding{System: r.SystemURI, Code: r.Code, Display: r.Display})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": "ValueSet",
		"status":       "active",
		"expansion": map[string]interface{}{
			"identifier": uuid.New().String(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"total":      len(contains),
			"contains":   contains,
		},
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
