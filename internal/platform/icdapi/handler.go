package icdapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/namaste/tmbridge/internal/platform/auth"
	"github.com/namaste/tmbridge/pkg/pagination"
)

type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

func (h *Handler) RegisterRoutes(api *echo.Group, _ *echo.Group) {
	g := api.Group("/who", auth.RequireRole(auth.RoleDoctor, auth.RoleCurator))
	g.GET("/health", h.Health)
	g.GET("/entity/:code", h.GetEntity)
	g.GET("/search", h.Search)
	g.POST("/validate-mapping", h.ValidateMapping)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}

// Health handles GET /api/v1/who/health.
func (h *Handler) Health(c echo.Context) error {
	health := h.client.Health(c.Request().Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, health)
}

func (h *Handler) GetEntity(c echo.Context) error {
	e, err := h.client.Entity(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

// Search handles GET /api/v1/who/search?q=...
func (h *Handler) Search(c echo.Context) error {
	hits, err := h.client.Search(c.Request().Context(), c.QueryParam("q"), pagination.FromContext(c).Limit)
	if err != nil {
		return httpError(err)
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	return c.JSON(http.StatusOK, hits)
}

func (h *Handler) ValidateMapping(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.client.ValidateMapping(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}
