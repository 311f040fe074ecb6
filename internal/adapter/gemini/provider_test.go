package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/alereyleyva/extractify/internal/adapter/gemini"
	"github.com/alereyleyva/extractify/internal/llm"
	"github.com/alereyleyva/extractify/internal/schema"
)

func TestProvider_Generate(t *testing.T) {
	var captured map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": `{"total":{"value":"10","confidence":1}}`}},
					},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]interface{}{
				"promptTokenCount":     12,
				"candidatesTokenCount": 8,
				"totalTokenCount":      20,
			},
		})
	}))
	defer ts.Close()

	p := gemini.NewProvider("test-key", option.WithEndpoint(ts.URL))
	defer p.Close()

	compiled := schema.Compile([]schema.Attribute{{Name: "total", Type: schema.TypeString}})
	resp, err := p.Generate(context.Background(), llm.GenerateRequest{
		Model:        "gemini-2.0-flash",
		SystemPrompt: "be precise",
		Prompt:       "extract",
		Schema:       compiled.Schema,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":{"value":"10","confidence":1}}`, string(resp.Content))
	assert.Equal(t, llm.Usage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20}, resp.Usage)

	raw, _ := json.Marshal(captured)
	assert.True(t, strings.Contains(string(raw), "application/json"), "response mime type should be sent")
}

func TestProvider_MissingKey(t *testing.T) {
	p := gemini.NewProvider("")
	_, err := p.Generate(context.Background(), llm.GenerateRequest{Model: "m"})
	assert.ErrorIs(t, err, gemini.ErrMissingAPIKey)
}

func TestToGenaiSchema(t *testing.T) {
	compiled := schema.Compile([]schema.Attribute{
		{Name: "items", Type: schema.TypeArrayOfRecords, Children: []schema.Attribute{{Name: "sku", Type: schema.TypeString}}},
		{Name: "meta", Type: schema.TypeRecord},
	})

	g := gemini.ToGenaiSchema(compiled.Schema)
	require.Equal(t, genai.TypeObject, g.Type)

	items := g.Properties["items"]
	assert.ElementsMatch(t, []string{"value", "confidence"}, items.Required)
	assert.Equal(t, genai.TypeNumber, items.Properties["confidence"].Type)

	value := items.Properties["value"]
	assert.Equal(t, genai.TypeArray, value.Type)
	assert.True(t, value.Nullable)
	assert.Equal(t, genai.TypeObject, value.Items.Type)
	assert.Contains(t, value.Items.Properties, "sku")

	meta := g.Properties["meta"].Properties["value"]
	assert.Equal(t, genai.TypeArray, meta.Type)
	assert.True(t, meta.Nullable)
	require.NotNil(t, meta.Items)
	assert.Equal(t, genai.TypeObject, meta.Items.Type)
	assert.ElementsMatch(t, []string{"key", "value"}, meta.Items.Required)
	assert.Equal(t, genai.TypeString, meta.Items.Properties["key"].Type)
	assert.Equal(t, genai.TypeString, meta.Items.Properties["value"].Type)
}

func TestFromGenaiValue(t *testing.T) {
	compiled := schema.Compile([]schema.Attribute{
		{Name: "meta", Type: schema.TypeRecord},
		{Name: "lines", Type: schema.TypeArrayOfRecords},
	})

	var v any
	require.NoError(t, json.Unmarshal([]byte(`{
		"meta":{"value":[{"key":"color","value":"red"},{"key":"size","value":"L"}],"confidence":0.8},
		"lines":{"value":[[{"key":"sku","value":"A1"}],[]],"confidence":0.5}
	}`), &v))

	out, err := json.Marshal(gemini.FromGenaiValue(compiled.Schema, v))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"meta":{"value":{"color":"red","size":"L"},"confidence":0.8},
		"lines":{"value":[{"sku":"A1"},{}],"confidence":0.5}
	}`, string(out))
	assert.NoError(t, schema.Validate(compiled.Schema, out))
}

func TestProvider_Generate_OpenMap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": `{"meta":{"value":[{"key":"po","value":"42"}],"confidence":0.9}}`}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer ts.Close()

	p := gemini.NewProvider("test-key", option.WithEndpoint(ts.URL))
	defer p.Close()

	compiled := schema.Compile([]schema.Attribute{{Name: "meta", Type: schema.TypeRecord}})
	resp, err := p.Generate(context.Background(), llm.GenerateRequest{
		Model:  "gemini-2.0-flash",
		Prompt: "extract",
		Schema: compiled.Schema,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"meta":{"value":{"po":"42"},"confidence":0.9}}`, string(resp.Content))
	assert.NoError(t, schema.Validate(compiled.Schema, resp.Content))
}
