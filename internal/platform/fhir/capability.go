package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type SearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

// OperationDef names a FHIR operation and its OperationDefinition URL.
type OperationDef struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

type capabilityEntry struct {
	interactions []string
	searchParams []SearchParam
	operations   []OperationDef
}

// CapabilityBuilder collects what each domain handler serves so that
// /fhir/metadata describes only the mounted resources and operations.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	resources map[string]*capabilityEntry

	BaseURL       string
	ServerVersion string
	Publisher     string
	Description   string
}

func NewCapabilityBuilder(baseURL, version string) *CapabilityBuilder {
	return &CapabilityBuilder{
		resources:     make(map[string]*capabilityEntry),
		BaseURL:       baseURL,
		ServerVersion: version,
		Description:   "NAMASTE to ICD-11 TM2 terminology and mapping service",
	}
}

// AddResource registers a resource type. Registering the same type again
// merges interactions, search parameters and operations.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, searchParams []SearchParam, operations ...OperationDef) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.resources[resourceType]
	if !ok {
		e = &capabilityEntry{}
		b.resources[resourceType] = e
	}
	for _, i := range interactions {
		if !containsString(e.interactions, i) {
			e.interactions = append(e.interactions, i)
		}
	}
	for _, sp := range searchParams {
		if !hasSearchParam(e.searchParams, sp.Name) {
			e.searchParams = append(e.searchParams, sp)
		}
	}
	for _, op := range operations {
		if !hasOperation(e.operations, op.Name) {
			e.operations = append(e.operations, op)
		}
	}
}

func (b *CapabilityBuilder) ResourceTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// Build renders the CapabilityStatement. Resource types are sorted for
// deterministic output.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	types := b.ResourceTypes()

	b.mu.RLock()
	defer b.mu.RUnlock()

	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		resources = append(resources, buildCapabilityResource(rt, b.resources[rt]))
	}

	cs := map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"json"},
		"software": map[string]string{
			"name":    "tmbridge",
			"version": b.ServerVersion,
		},
		"implementation": map[string]string{
			"description": b.Description,
			"url":         b.BaseURL,
		},
		"rest": []map[string]interface{}{{
			"mode":     "server",
			"resource": resources,
		}},
	}
	if b.Publisher != "" {
		cs["publisher"] = b.Publisher
	}
	return cs
}

func buildCapabilityResource(rt string, e *capabilityEntry) map[string]interface{} {
	res := map[string]interface{}{"type": rt}

	if len(e.interactions) > 0 {
		interactions := make([]map[string]string, len(e.interactions))
		for i, code := range e.interactions {
			interactions[i] = map[string]string{"code": code}
		}
		res["interaction"] = interactions
	}
	if len(e.searchParams) > 0 {
		params := make([]map[string]string, len(e.searchParams))
		for i, sp := range e.searchParams {
			p := map[string]string{"name": sp.Name, "type": sp.Type}
			if sp.Documentation != "" {
				p["documentation"] = sp.Documentation
			}
			params[i] = p
		}
		res["searchParam"] = params
	}
	if len(e.operations) > 0 {
		ops := make([]map[string]string, len(e.operations))
		for i, op := range e.operations {
			ops[i] = map[string]string{"name": op.Name, "definition": op.Definition}
		}
		res["operation"] = ops
	}
	return res
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func hasSearchParam(list []SearchParam, name string) bool {
	for _, sp := range list {
		if sp.Name == name {
			return true
		}
	}
	return false
}

func hasOperation(list []OperationDef, name string) bool {
	for _, op := range list {
		if op.Name == name {
			return true
		}
	}
	return false
}

// MetadataHandler serves GET /metadata from the builder.
func MetadataHandler(b *CapabilityBuilder) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.Build())
	}
}
