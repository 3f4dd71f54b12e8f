package mapping

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/namaste/tmbridge/internal/domain/terminology"
	"github.com/namaste/tmbridge/internal/platform/auth"
	"github.com/namaste/tmbridge/internal/platform/fhir"
	"github.com/namaste/tmbridge/pkg/pagination"
)

type Handler struct {
	svc                *Service
	fhirBaseURL        string
	rescoreConcurrency int
	validator          Validator
}

// NewHandler builds the mapping handler. fhirBaseURL prefixes bundle
// fullUrls; rescoreConcurrency bounds POST /mappings/rescore.
func NewHandler(svc *Service, fhirBaseURL string, rescoreConcurrency int) *Handler {
	return &Handler{svc: svc, fhirBaseURL: fhirBaseURL, rescoreConcurrency: rescoreConcurrency}
}

// WithValidator enables GET /mappings/namaste/:code/validated.
func (h *Handler) WithValidator(v Validator) *Handler {
	h.validator = v
	return h
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	readers := auth.RequireRole(auth.RoleDoctor, auth.RoleCurator)
	curators := auth.RequireRole(auth.RoleCurator)

	read := api.Group("/mappings", readers)
	read.GET("", h.ListMappings)
	read.GET("/stats", h.GetStats)
	read.GET("/search", h.SearchWithMappings)
	read.GET("/namaste/:code/validated", h.ValidatedMappings)
	read.GET("/:id", h.GetMapping)
	read.POST("/score-records", h.ScoreRecords)

	write := api.Group("/mappings", curators)
	write.POST("/score", h.ScoreMapping)
	write.POST("/import", h.ImportCandidates)
	write.POST("/:id/approve", h.ApproveMapping)

	admin := api.Group("/mappings", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/rescore", h.Rescore)

	fhirRead := fhirGroup.Group("", readers)
	fhir.NewTranslateHandler(h.svc).RegisterRoutes(fhirRead)
	fhirRead.GET("/ConceptMap", h.SearchConceptMapsFHIR)
	fhirRead.GET("/ConceptMap/namaste-to-icd11", h.GetConceptMapFHIR)
}

func (h *Handler) RegisterCapabilities(b *fhir.CapabilityBuilder) {
	b.AddResource("ConceptMap", []string{"read", "search-type"},
		[]fhir.SearchParam{
			{Name: ParamNamaste, Type: "token"},
			{Name: ParamTM2, Type: "token"},
			{Name: ParamICD, Type: "token"},
			{Name: ParamLevel, Type: "token"},
			{Name: ParamApproved, Type: "token"},
		},
		fhir.OperationDef{Name: "translate", Definition: "http://hl7.org/fhir/OperationDefinition/ConceptMap-translate"},
	)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, terminology.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func searchParams(c echo.Context) map[string]string {
	params := map[string]string{}
	for _, k := range SearchParams {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	return params
}

// -- REST Endpoints --

func (h *Handler) ScoreMapping(c echo.Context) error {
	var req ScoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Score(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ScoreRecords(c echo.Context) error {
	var req ScoreRecordsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.ScoreRecords(req))
}

// ImportCandidates scores a CSV body of namaste_code,tm2_code,icd_code rows.
func (h *Handler) ImportCandidates(c echo.Context) error {
	res, err := h.svc.ImportCandidates(c.Request().Context(), c.Request().Body)
	if err != nil {
		if res == nil {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Rescore(c echo.Context) error {
	concurrency := h.rescoreConcurrency
	if v, err := strconv.Atoi(c.QueryParam("concurrency")); err == nil && v > 0 {
		concurrency = v
	}
	res, err := h.svc.Rescore(c.Request().Context(), concurrency)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListMappings(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), searchParams(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// SearchWithMappings handles GET /api/v1/mappings/search?q=...
func (h *Handler) SearchWithMappings(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	res, err := h.svc.SearchWithMappings(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ValidatedMappings(c echo.Context) error {
	if h.validator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ICD-11 validation is not configured")
	}
	res, err := h.svc.ValidateStored(c.Request().Context(), c.Param("code"), h.validator)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"namaste_code": c.Param("code"),
		"mappings":     res,
	})
}

func (h *Handler) GetMapping(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ApproveMapping(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	curator := auth.UserIDFromContext(c.Request().Context())
	m, err := h.svc.Approve(c.Request().Context(), id, curator)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// -- FHIR Endpoints --

// SearchConceptMapsFHIR returns each matching mapping as a single-element
// ConceptMap in a searchset Bundle.
func (h *Handler) SearchConceptMapsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), searchParams(c), pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	entries := make([]fhir.SearchEntry, len(items))
	for i, m := range items {
		entries[i] = fhir.SearchEntry{ResourceType: "ConceptMap", ID: m.ID.String(), Resource: m.ToFHIR()}
	}
	bundle, err := fhir.NewSearchBundle(entries, total, h.fhirBaseURL, c.Request().URL.String(), pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

// GetConceptMapFHIR serves the aggregate namaste-to-icd11 ConceptMap.
// ?approved=true restricts it to curator-approved mappings.
func (h *Handler) GetConceptMapFHIR(c echo.Context) error {
	approvedOnly, _ := strconv.ParseBool(c.QueryParam("approved"))
	cm, err := h.svc.ConceptMap(c.Request().Context(), approvedOnly)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, cm)
}
