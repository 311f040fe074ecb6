package schema

const (
	KindObject = "object"
	KindArray  = "array"
	KindString = "string"
	KindNumber = "number"
)

// Schema is a provider-neutral description of the structured output a model
// must produce. Adapters translate it to their own schema dialects.
type Schema struct {
	Type                 string
	Nullable             bool
	Description          string
	Properties           map[string]*Schema
	Order                []string
	Required             []string
	Items                *Schema
	AdditionalProperties *Schema
	Minimum              *float64
	Maximum              *float64

	// wrapper marks the {value, confidence} object around one attribute.
	wrapper bool
}

// JSONSchema renders the schema as a JSON Schema (draft 2020-12) document.
func (s *Schema) JSONSchema() map[string]any {
	m := map[string]any{}
	if s.Nullable {
		m["type"] = []any{s.Type, "null"}
	} else {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Properties != nil {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		m["properties"] = props
		if s.AdditionalProperties == nil {
			m["additionalProperties"] = false
		}
	}
	if len(s.Required) > 0 {
		required := make([]any, len(s.Required))
		for i, r := range s.Required {
			required[i] = r
		}
		m["required"] = required
	}
	if s.AdditionalProperties != nil {
		m["additionalProperties"] = s.AdditionalProperties.JSONSchema()
	}
	if s.Items != nil {
		m["items"] = s.Items.JSONSchema()
	}
	if s.Minimum != nil {
		m["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		m["maximum"] = *s.Maximum
	}
	return m
}
