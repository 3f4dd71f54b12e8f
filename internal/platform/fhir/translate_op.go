package fhir

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Translator answers ConceptMap/$translate.
type Translator interface {
	Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error)
}

type TranslateRequest struct {
	Code          string
	System        string
	TargetSystem  string
	ConceptMapURL string
}

type TranslateResponse struct {
	Result  bool
	Message string
	Matches []TranslateMatch
}

type TranslateMatch struct {
	Equivalence string
	Code        string
	Display     string
	System      string
	// Confidence is the stored overall score, reported as a match part.
	Confidence float64
	Source     string
}

type TranslateHandler struct {
	translator Translator
}

func NewTranslateHandler(translator Translator) *TranslateHandler {
	return &TranslateHandler{translator: translator}
}

func (h *TranslateHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ConceptMap/$translate", h.Translate)
	g.POST("/ConceptMap/$translate", h.TranslatePost)
}

// Translate handles GET /fhir/ConceptMap/$translate with query parameters.
func (h *TranslateHandler) Translate(c echo.Context) error {
	req := TranslateRequest{
		Code:          c.QueryParam("code"),
		System:        c.QueryParam("system"),
		TargetSystem:  c.QueryParam("targetsystem"),
		ConceptMapURL: c.QueryParam("url"),
	}
	return h.doTranslate(c, req)
}

// TranslatePost handles POST /fhir/ConceptMap/$translate with a Parameters body.
func (h *TranslateHandler) TranslatePost(c echo.Context) error {
	params, err := ReadParameters(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeStructure, err.Error()))
	}

	req := TranslateRequest{
		Code:          params.StringValue("code"),
		System:        params.StringValue("system"),
		TargetSystem:  params.StringValue("targetsystem"),
		ConceptMapURL: params.StringValue("url"),
	}
	if coding, ok := params.Get("coding"); ok && coding.ValueCoding != nil {
		if req.Code == "" {
			req.Code = coding.ValueCoding.Code
		}
		if req.System == "" {
			req.System = coding.ValueCoding.System
		}
	}
	return h.doTranslate(c, req)
}

func (h *TranslateHandler) doTranslate(c echo.Context, req TranslateRequest) error {
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, RequiredOutcome("code"))
	}
	if req.System == "" {
		return c.JSON(http.StatusBadRequest, RequiredOutcome("system"))
	}

	resp, err := h.translator.Translate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnsupportedSystem) {
			return c.JSON(http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, ErrorOutcome(err.Error()))
	}

	return c.JSON(http.StatusOK, TranslateParameters(resp))
}

// TranslateParameters renders a TranslateResponse as a FHIR Parameters resource.
func TranslateParameters(resp *TranslateResponse) *Parameters {
	p := NewParameters().
		AddBool("result", resp.Result).
		AddString("message", resp.Message)

	for _, m := range resp.Matches {
		conf := m.Confidence
		parts := []Parameter{
			{Name: "equivalence", ValueCode: m.Equivalence},
			{Name: "concept", ValueCoding: &Coding{System: m.System, Code: m.Code, Display: m.Display}},
			{Name: "confidence", ValueDecimal: &conf},
		}
		if m.Source != "" {
			parts = append(parts, Parameter{Name: "source", ValueURI: m.Source})
		}
		p.AddPart("match", parts...)
	}
	return p
}
