package fhir

import (
	"encoding/json"
	"fmt"
	"io"
)

// Parameters is the FHIR Parameters resource used by operation requests and
// responses.
type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter,omitempty"`
}

type Parameter struct {
	Name         string      `json:"name"`
	ValueString  string      `json:"valueString,omitempty"`
	ValueCode    string      `json:"valueCode,omitempty"`
	ValueURI     string      `json:"valueUri,omitempty"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueDecimal *float64    `json:"valueDecimal,omitempty"`
	ValueCoding  *Coding     `json:"valueCoding,omitempty"`
	Part         []Parameter `json:"part,omitempty"`
}

func NewParameters() *Parameters {
	return &Parameters{ResourceType: "Parameters"}
}

func (p *Parameters) AddString(name, v string) *Parameters {
	p.Parameter = append(p.Parameter, Parameter{Name: name, ValueString: v})
	return p
}

func (p *Parameters) AddCode(name, v string) *Parameters {
	p.Parameter = append(p.Parameter, Parameter{Name: name, ValueCode: v})
	return p
}

func (p *Parameters) AddBool(name string, v bool) *Parameters {
	p.Parameter = append(p.Parameter, Parameter{Name: name, ValueBoolean: &v})
	return p
}

func (p *Parameters) AddDecimal(name string, v float64) *Parameters {
	p.Parameter = append(p.Parameter, Parameter{Name: name, ValueDecimal: &v})
	return p
}

func (p *Parameters) AddPart(name string, parts ...Parameter) *Parameters {
	p.Parameter = append(p.Parameter, Parameter{Name: name, Part: parts})
	return p
}

// Get returns the first parameter with the given name.
func (p *Parameters) Get(name string) (Parameter, bool) {
	for _, prm := range p.Parameter {
		if prm.Name == name {
			return prm, true
		}
	}
	return Parameter{}, false
}

// Value returns the parameter's primitive value as a string, whichever of
// code, uri or string carries it. valueCoding contributes its code.
func (p Parameter) Value() string {
	switch {
	case p.ValueCode != "":
		return p.ValueCode
	case p.ValueURI != "":
		return p.ValueURI
	case p.ValueString != "":
		return p.ValueString
	case p.ValueCoding != nil:
		return p.ValueCoding.Code
	}
	return ""
}

// StringValue is Get(name).Value(), or "" when absent.
func (p *Parameters) StringValue(name string) string {
	prm, _ := p.Get(name)
	return prm.Value()
}

// ReadParameters decodes a Parameters resource from an operation request body.
func ReadParameters(r io.Reader) (*Parameters, error) {
	var p Parameters
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if p.ResourceType != "" && p.ResourceType != "Parameters" {
		return nil, fmt.Errorf("expected Parameters resource, got %s", p.ResourceType)
	}
	return &p, nil
}
