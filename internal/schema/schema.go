// Package schema describes the JSON shape a structured-extraction provider must fill.
// It is a small subset of JSON Schema that both the OpenAI json_schema response format
// and the Gemini response schema can express.
package schema

import (
	"encoding/json"
	"sort"
)

type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

type Schema struct {
	Name        string
	Type        Type
	Description string
	Nullable    bool
	Properties  map[string]*Schema
	// Order fixes the property order for providers that honour it.
	Order    []string
	Required []string
	Items    *Schema
}

// JSONSchema renders the schema in strict JSON Schema form. Nullable fields become
// a type union with "null", and every object forbids additional properties.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{}
	if s.Nullable {
		out["type"] = []string{string(s.Type), "null"}
	} else {
		out["type"] = string(s.Type)
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Type == TypeObject {
		props := map[string]any{}
		for name, prop := range s.Properties {
			props[name] = prop.JSONSchema()
		}
		out["properties"] = props
		out["additionalProperties"] = false
		required := s.Required
		if len(required) == 0 {
			required = s.PropertyNames()
		}
		out["required"] = required
	}
	if s.Type == TypeArray && s.Items != nil {
		out["items"] = s.Items.JSONSchema()
	}
	return out
}

// PropertyNames returns property names in declaration order when Order is set,
// falling back to the sorted map keys otherwise.
func (s *Schema) PropertyNames() []string {
	if len(s.Order) > 0 {
		return append([]string(nil), s.Order...)
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.JSONSchema())
}

func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

func NullableString(description string) *Schema {
	return &Schema{Type: TypeString, Description: description, Nullable: true}
}

func NullableBool(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description, Nullable: true}
}

func StringList(description string) *Schema {
	return &Schema{Type: TypeArray, Description: description, Items: &Schema{Type: TypeString}}
}
