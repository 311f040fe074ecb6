package schema

import (
	"encoding/json"
	"fmt"
)

// Normalize strips the {value, confidence} wrappers from a model result by
// walking its compiled schema, leaving the plain extracted values in the
// shape of the attribute tree. Values the schema does not describe pass
// through unchanged.
func Normalize(s *Schema, v any) any {
	if s == nil || v == nil {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		if s.wrapper {
			return Normalize(s.Properties[FieldValue], t[FieldValue])
		}
		if len(s.Properties) == 0 {
			return t
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = Normalize(s.Properties[k], x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = Normalize(s.Items, x)
		}
		return out
	default:
		return v
	}
}

// NormalizeJSON is Normalize over an encoded result.
func NormalizeJSON(s *Schema, raw []byte) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	out, err := json.Marshal(Normalize(s, v))
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return out, nil
}
