package bedrock

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alereyleyva/extractify/internal/llm"
	"github.com/alereyleyva/extractify/internal/schema"
)

type MockConverse struct {
	mock.Mock
}

func (m *MockConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bedrockruntime.ConverseOutput), args.Error(1)
}

func request() llm.GenerateRequest {
	compiled := schema.Compile([]schema.Attribute{{Name: "vendor", Type: schema.TypeString}})
	return llm.GenerateRequest{Model: "anthropic.claude-3-haiku", SystemPrompt: "sys", Prompt: "extract", Schema: compiled.Schema}
}

func TestProvider_Generate_ToolUse(t *testing.T) {
	client := new(MockConverse)
	out := &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Recording."},
				&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					Name:      aws.String(toolName),
					ToolUseId: aws.String("t1"),
					Input:     document.NewLazyDocument(map[string]any{"vendor": map[string]any{"value": "ACME", "confidence": 0.9}}),
				}},
			},
		}},
		StopReason: types.StopReasonToolUse,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(100), OutputTokens: aws.Int32(20), TotalTokens: aws.Int32(120)},
	}
	client.On("Converse", mock.Anything, mock.MatchedBy(func(in *bedrockruntime.ConverseInput) bool {
		choice, ok := in.ToolConfig.ToolChoice.(*types.ToolChoiceMemberTool)
		return ok && aws.ToString(choice.Value.Name) == toolName && len(in.System) == 1
	})).Return(out, nil)

	resp, err := NewProvider(client).Generate(context.Background(), request())
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendor":{"value":"ACME","confidence":0.9}}`, string(resp.Content))
	assert.Equal(t, llm.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120}, resp.Usage)
}

func TestProvider_Generate_NoToolCall(t *testing.T) {
	client := new(MockConverse)
	client.On("Converse", mock.Anything, mock.Anything).Return(&bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "no"}},
		}},
		StopReason: types.StopReasonEndTurn,
	}, nil)

	_, err := NewProvider(client).Generate(context.Background(), request())
	assert.ErrorContains(t, err, "did not call")
}

func TestProvider_Generate_Error(t *testing.T) {
	client := new(MockConverse)
	client.On("Converse", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := NewProvider(client).Generate(context.Background(), request())
	assert.EqualError(t, err, "throttled")
}

func TestProvider_Generate_WireResponse(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"output": {"message": {"role": "assistant", "content": [
				{"toolUse": {"toolUseId": "t1", "name": "record_extraction",
					"input": {"vendor": {"value": "ACME", "confidence": 0.9}}}}
			]}},
			"stopReason": "tool_use",
			"usage": {"inputTokens": 10, "outputTokens": 5, "totalTokens": 15},
			"metrics": {"latencyMs": 12}
		}`))
	}))
	defer srv.Close()

	client := bedrockruntime.New(bedrockruntime.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		Credentials:      aws.AnonymousCredentials{},
		HTTPClient:       srv.Client(),
		RetryMaxAttempts: 1,
	})

	req := request()
	resp, err := NewProvider(client).Generate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "/converse"), gotPath)
	assert.Contains(t, gotBody, toolName)
	assert.JSONEq(t, `{"vendor":{"value":"ACME","confidence":0.9}}`, string(resp.Content))
	assert.NoError(t, schema.Validate(req.Schema, resp.Content))
	assert.Equal(t, llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, resp.Usage)
}
