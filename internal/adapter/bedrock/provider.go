// Package bedrock runs structured-output generation through the Bedrock
// Converse API by forcing the model to call a single tool whose input schema
// is the extraction schema.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/alereyleyva/extractify/internal/llm"
)

const toolName = "record_extraction"

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Provider struct {
	client ConverseAPI
}

func NewProvider(client ConverseAPI) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
		InferenceConfig: &types.InferenceConfiguration{Temperature: aws.Float32(0)},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: types.ToolSpecification{
				Name:        aws.String(toolName),
				Description: aws.String("Record the extracted attributes."),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(req.Schema.JSONSchema())},
			}}},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(toolName)}},
		},
	}
	if req.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, err
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected converse output %T", out.Output)
	}

	var content []byte
	for _, block := range msg.Value.Content {
		use, ok := block.(*types.ContentBlockMemberToolUse)
		if !ok || aws.ToString(use.Value.Name) != toolName || use.Value.Input == nil {
			continue
		}
		// Marshal keeps wire numbers as JSON numbers.
		if content, err = use.Value.Input.MarshalSmithyDocument(); err != nil {
			return nil, fmt.Errorf("encode tool input: %w", err)
		}
		break
	}
	if content == nil {
		return nil, fmt.Errorf("model did not call %s (stop reason %s)", toolName, out.StopReason)
	}

	resp := &llm.GenerateResponse{Content: content}
	if out.Usage != nil {
		resp.Usage = llm.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}
