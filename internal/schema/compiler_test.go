package schema_test

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alereyleyva/extractify/internal/schema"
)

func invoiceAttributes() []schema.Attribute {
	return []schema.Attribute{
		{ID: "1", Name: "invoice_number", Type: schema.TypeString, Description: "Invoice identifier"},
		{ID: "2", Name: "tags", Type: schema.TypeArray},
		{ID: "3", Name: "customer", Type: schema.TypeRecord, Children: []schema.Attribute{
			{ID: "4", Name: "name", Type: schema.TypeString},
			{ID: "5", Name: "address", Type: schema.TypeRecord, Children: []schema.Attribute{
				{ID: "6", Name: "city", Type: schema.TypeString},
				{ID: "7", Name: "zip", Type: schema.TypeString},
			}},
		}},
		{ID: "8", Name: "items", Type: schema.TypeArrayOfRecords, Children: []schema.Attribute{
			{ID: "9", Name: "sku", Type: schema.TypeString},
			{ID: "10", Name: "qty", Type: schema.TypeString},
		}},
		{ID: "11", Name: "extra", Type: schema.TypeRecord},
	}
}

// assertMirrors walks the attribute tree and the schema side by side.
func assertMirrors(t *testing.T, attrs []schema.Attribute, obj *schema.Schema) {
	t.Helper()
	require.Equal(t, schema.KindObject, obj.Type)

	names := make([]string, 0, len(attrs))
	for _, a := range attrs {
		names = append(names, a.Name)
	}
	keys := make([]string, 0, len(obj.Properties))
	for k := range obj.Properties {
		keys = append(keys, k)
	}
	sort.Strings(names)
	sort.Strings(keys)
	assert.Equal(t, names, keys)

	for _, a := range attrs {
		wrapper := obj.Properties[a.Name]
		require.NotNil(t, wrapper, a.Name)
		assert.ElementsMatch(t, []string{schema.FieldValue, schema.FieldConfidence}, wrapper.Required)

		conf := wrapper.Properties[schema.FieldConfidence]
		require.NotNil(t, conf)
		assert.Equal(t, 0.0, *conf.Minimum)
		assert.Equal(t, 1.0, *conf.Maximum)

		value := wrapper.Properties[schema.FieldValue]
		assert.True(t, value.Nullable, a.Name)
		switch a.Type {
		case schema.TypeString:
			assert.Equal(t, schema.KindString, value.Type)
		case schema.TypeArray:
			assert.Equal(t, schema.KindArray, value.Type)
			assert.Equal(t, schema.KindString, value.Items.Type)
		case schema.TypeRecord:
			if len(a.Children) == 0 {
				assert.NotNil(t, value.AdditionalProperties)
				continue
			}
			assertMirrors(t, a.Children, value)
		case schema.TypeArrayOfRecords:
			assert.Equal(t, schema.KindArray, value.Type)
			assertMirrors(t, a.Children, value.Items)
		}
	}
}

func TestCompile_SchemaMirrorsTree(t *testing.T) {
	attrs := invoiceAttributes()
	compiled := schema.Compile(attrs)

	assertMirrors(t, attrs, compiled.Schema)
	assert.Equal(t, []string{"invoice_number", "tags", "customer", "items", "extra"}, compiled.Schema.Order)
}

func TestCompile_ValidatesWrappedOutput(t *testing.T) {
	compiled := schema.Compile(invoiceAttributes())

	valid := `{
		"invoice_number": {"value": "INV-1", "confidence": 1.0},
		"tags": {"value": ["a", "b"], "confidence": 0.8},
		"customer": {"value": {
			"name": {"value": "Acme", "confidence": 1},
			"address": {"value": {
				"city": {"value": "Madrid", "confidence": 0.5},
				"zip": {"value": null, "confidence": 0}
			}, "confidence": 0.9}
		}, "confidence": 1},
		"items": {"value": [{"sku": {"value": "X", "confidence": 1}, "qty": {"value": "2", "confidence": 1}}], "confidence": 1},
		"extra": {"value": {"note": "free"}, "confidence": 0.2}
	}`
	assert.NoError(t, schema.Validate(compiled.Schema, []byte(valid)))

	t.Run("Confidence out of range", func(t *testing.T) {
		bad := strings.Replace(valid, `{"value": "INV-1", "confidence": 1.0}`, `{"value": "INV-1", "confidence": 1.5}`, 1)
		assert.Error(t, schema.Validate(compiled.Schema, []byte(bad)))
	})

	t.Run("Missing wrapper", func(t *testing.T) {
		bad := strings.Replace(valid, `{"value": "INV-1", "confidence": 1.0}`, `"INV-1"`, 1)
		assert.Error(t, schema.Validate(compiled.Schema, []byte(bad)))
	})

	t.Run("Null values", func(t *testing.T) {
		nulls := `{
			"invoice_number": {"value": null, "confidence": 0},
			"tags": {"value": null, "confidence": 0},
			"customer": {"value": null, "confidence": 0},
			"items": {"value": null, "confidence": 0},
			"extra": {"value": null, "confidence": 0}
		}`
		assert.NoError(t, schema.Validate(compiled.Schema, []byte(nulls)))
	})
}

func TestInstructions_IndentsPerLevel(t *testing.T) {
	text := schema.Instructions(invoiceAttributes())

	assert.Contains(t, text, "- invoice_number (string): Invoice identifier\n")
	assert.Contains(t, text, "- customer (object with the following fields)\n")
	assert.Contains(t, text, "\n  - address (object with the following fields)\n")
	assert.Contains(t, text, "\n    - city (string)\n")
	assert.Contains(t, text, "- items (array of objects, where each object has the following fields)\n")
	assert.Contains(t, text, "\n  - sku (string)\n")
	assert.Contains(t, text, "--- Document: <fileName> ---")
	assert.Contains(t, text, "confidence MUST be 0.0")
}

func TestNormalize(t *testing.T) {
	compiled := schema.Compile(append(invoiceAttributes(), schema.Attribute{Name: "missing", Type: schema.TypeString}))

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"customer": {"value": {"address": {"value": {"city": {"value": "Madrid", "confidence": 1}}, "confidence": 1}}, "confidence": 1},
		"items": {"value": [{"sku": {"value": "X", "confidence": 1}}], "confidence": 1},
		"missing": {"value": null, "confidence": 0}
	}`), &raw))

	out := schema.Normalize(compiled.Schema, raw).(map[string]any)

	assert.Equal(t, "Madrid", out["customer"].(map[string]any)["address"].(map[string]any)["city"])
	assert.Equal(t, "X", out["items"].([]any)[0].(map[string]any)["sku"])
	assert.Nil(t, out["missing"])
}

func TestNormalize_ChildrenNamedLikeWrapper(t *testing.T) {
	compiled := schema.Compile([]schema.Attribute{{
		Name: "reading",
		Type: schema.TypeRecord,
		Children: []schema.Attribute{
			{Name: "value", Type: schema.TypeString},
			{Name: "confidence", Type: schema.TypeString},
		},
	}, {
		Name: "tags",
		Type: schema.TypeRecord,
	}})

	raw := []byte(`{
		"reading": {"value": {"value": {"value": "42", "confidence": 0.9}, "confidence": {"value": "high", "confidence": 0.7}}, "confidence": 1},
		"tags": {"value": {"value": "a", "confidence": "b"}, "confidence": 0.5}
	}`)

	out, err := schema.NormalizeJSON(compiled.Schema, raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"reading": {"value": "42", "confidence": "high"},
		"tags": {"value": "a", "confidence": "b"}
	}`, string(out))
}

func TestParseAttributes(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		raw, err := json.Marshal(invoiceAttributes())
		require.NoError(t, err)

		attrs, err := schema.ParseAttributes(raw)
		require.NoError(t, err)
		assert.Len(t, attrs, 5)
		assert.Equal(t, schema.TypeRecord, attrs[2].Type)
	})

	t.Run("Too Deep", func(t *testing.T) {
		leaf := schema.Attribute{Name: "leaf", Type: schema.TypeString}
		for i := 0; i < schema.MaxDepth; i++ {
			leaf = schema.Attribute{Name: "level", Type: schema.TypeRecord, Children: []schema.Attribute{leaf}}
		}
		raw, err := json.Marshal([]schema.Attribute{leaf})
		require.NoError(t, err)

		_, err = schema.ParseAttributes(raw)
		assert.ErrorIs(t, err, schema.ErrAttributeTooDeep)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		_, err := schema.ParseAttributes([]byte("{"))
		assert.Error(t, err)
	})
}
