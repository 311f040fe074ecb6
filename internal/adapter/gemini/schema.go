package gemini

import (
	"github.com/google/generative-ai-go/genai"

	"github.com/alereyleyva/extractify/internal/schema"
)

const (
	pairKey   = "key"
	pairValue = "value"
)

// ToGenaiSchema converts a compiled output schema to Gemini's dialect.
// Gemini has no numeric bounds, so those are carried in the description and
// enforced by output validation. Gemini also rejects objects without
// properties, so an open string map is requested as a list of key/value
// pairs and folded back by FromGenaiValue.
func ToGenaiSchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	if isOpenMap(s) {
		return &genai.Schema{
			Type:        genai.TypeArray,
			Nullable:    s.Nullable,
			Description: "key/value pairs, one entry per extracted field",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					pairKey:   {Type: genai.TypeString},
					pairValue: {Type: genai.TypeString},
				},
				Required: []string{pairKey, pairValue},
			},
		}
	}

	out := &genai.Schema{
		Nullable:    s.Nullable,
		Description: s.Description,
	}
	switch s.Type {
	case schema.KindObject:
		out.Type = genai.TypeObject
	case schema.KindArray:
		out.Type = genai.TypeArray
	case schema.KindNumber:
		out.Type = genai.TypeNumber
		if s.Minimum != nil && s.Maximum != nil && out.Description == "" {
			out.Description = "number between 0 and 1"
		}
	default:
		out.Type = genai.TypeString
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = ToGenaiSchema(p)
		}
		out.Required = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		out.Items = ToGenaiSchema(s.Items)
	}
	return out
}

// FromGenaiValue walks a decoded Gemini response alongside the compiled
// schema and turns key/value pair lists back into objects.
func FromGenaiValue(s *schema.Schema, v any) any {
	if s == nil || v == nil {
		return v
	}
	if isOpenMap(s) {
		pairs, ok := v.([]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(pairs))
		for _, p := range pairs {
			entry, ok := p.(map[string]any)
			if !ok {
				continue
			}
			k, ok := entry[pairKey].(string)
			if !ok || k == "" {
				continue
			}
			out[k] = entry[pairValue]
		}
		return out
	}

	switch t := v.(type) {
	case map[string]any:
		for name, p := range s.Properties {
			if x, ok := t[name]; ok {
				t[name] = FromGenaiValue(p, x)
			}
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = FromGenaiValue(s.Items, x)
		}
		return t
	default:
		return v
	}
}

func isOpenMap(s *schema.Schema) bool {
	return s.Type == schema.KindObject && len(s.Properties) == 0 && s.AdditionalProperties != nil
}
