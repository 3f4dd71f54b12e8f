package fhir

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CodeSystemLookup serves CodeSystem/$lookup and CodeSystem/$validate-code.
type CodeSystemLookup interface {
	Lookup(ctx context.Context, req LookupRequest) (*LookupResult, error)
	ValidateCode(ctx context.Context, req ValidateCodeRequest) (*ValidateCodeResult, error)
}

type LookupRequest struct {
	System  string
	Code    string
	Version string
}

// LookupResult represents the result of a CodeSystem $lookup operation.
type LookupResult struct {
	Name        string
	Version     string
	Display     string
	Designation []string
	Property    []LookupProperty
}

type LookupProperty struct {
	Code  string
	Value string
}

type ValidateCodeRequest struct {
	System  string
	Code    string
	Display string
}

type ValidateCodeResult struct {
	Result  bool
	Message string
	Display string
}

type LookupHandler struct {
	lookup CodeSystemLookup
}

func NewLookupHandler(lookup CodeSystemLookup) *LookupHandler {
	return &LookupHandler{lookup: lookup}
}

func (h *LookupHandler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/CodeSystem/$lookup", h.Lookup)
	fhirGroup.POST("/CodeSystem/$lookup", h.Lookup)
	fhirGroup.GET("/CodeSystem/$validate-code", h.ValidateCode)
	fhirGroup.POST("/CodeSystem/$validate-code", h.ValidateCode)
}

// operationInput reads system, code, version and display from the query
// string on GET and from a Parameters body on POST.
func operationInput(c echo.Context) (*Parameters, error) {
	if c.Request().Method != http.MethodPost {
		p := NewParameters()
		for _, name := range []string{"system", "code", "version", "display"} {
			if v := c.QueryParam(name); v != "" {
				p.AddString(name, v)
			}
		}
		return p, nil
	}
	return ReadParameters(c.Request().Body)
}

// Lookup handles GET/POST /fhir/CodeSystem/$lookup
func (h *LookupHandler) Lookup(c echo.Context) error {
	in, err := operationInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeStructure, err.Error()))
	}
	req := LookupRequest{
		System:  in.StringValue("system"),
		Code:    in.StringValue("code"),
		Version: in.StringValue("version"),
	}
	if coding, ok := in.Get("coding"); ok && coding.ValueCoding != nil && req.Code == "" {
		req.System, req.Code = coding.ValueCoding.System, coding.ValueCoding.Code
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, RequiredOutcome("code"))
	}
	if req.System == "" {
		return c.JSON(http.StatusBadRequest, RequiredOutcome("system"))
	}

	result, err := h.lookup.Lookup(c.Request().Context(), req)
	if err != nil {
		return lookupError(c, req.Code, err)
	}
	return c.JSON(http.StatusOK, LookupParameters(result))
}

// ValidateCode handles GET/POST /fhir/CodeSystem/$validate-code
func (h *LookupHandler) ValidateCode(c echo.Context) error {
	in, err := operationInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeStructure, err.Error()))
	}
	req := ValidateCodeRequest{
		System:  in.StringValue("system"),
		Code:    in.StringValue("code"),
		Display: in.StringValue("display"),
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, RequiredOutcome("code"))
	}
	if req.System == "" {
		return c.JSON(http.StatusBadRequest, RequiredOutcome("system"))
	}

	result, err := h.lookup.ValidateCode(c.Request().Context(), req)
	if err != nil {
		return lookupError(c, req.Code, err)
	}

	p := NewParameters().AddBool("result", result.Result)
	if result.Message != "" {
		p.AddString("message", result.Message)
	}
	if result.Display != "" {
		p.AddString("display", result.Display)
	}
	return c.JSON(http.StatusOK, p)
}

func lookupError(c echo.Context, code string, err error) error {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return c.JSON(http.StatusNotFound, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, "code not found: "+code))
	case errors.Is(err, ErrUnsupportedSystem):
		return c.JSON(http.StatusBadRequest, NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, err.Error()))
	}
	return c.JSON(http.StatusInternalServerError, ErrorOutcome(err.Error()))
}

// LookupParameters renders a LookupResult as a FHIR Parameters resource.
func LookupParameters(r *LookupResult) *Parameters {
	p := NewParameters()
	if r.Name != "" {
		p.AddString("name", r.Name)
	}
	if r.Version != "" {
		p.AddString("version", r.Version)
	}
	if r.Display != "" {
		p.AddString("display", r.Display)
	}
	for _, d := range r.Designation {
		p.AddPart("designation", Parameter{Name: "value", ValueString: d})
	}
	for _, prop := range r.Property {
		p.AddPart("property",
			Parameter{Name: "code", ValueCode: prop.Code},
			Parameter{Name: "value", ValueString: prop.Value},
		)
	}
	return p
}
