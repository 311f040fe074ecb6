package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/alereyleyva/extractify/internal/llm"
	"github.com/alereyleyva/extractify/internal/schema"
)

var ErrMissingAPIKey = errors.New("gemini api key not configured")

// Provider runs structured-output generation against Gemini. The client is
// created lazily on first use and reused afterwards.
type Provider struct {
	apiKey     string
	clientOpts []option.ClientOption

	mu     sync.RWMutex
	client *genai.Client
}

func NewProvider(apiKey string, opts ...option.ClientOption) *Provider {
	return &Provider{apiKey: apiKey, clientOpts: opts}
}

func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = ToGenaiSchema(req.Schema)
	if req.SystemPrompt != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	out := &llm.GenerateResponse{Content: foldPairs(req.Schema, []byte(b.String()))}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// foldPairs restores open maps in content. Undecodable content is returned
// unchanged for output validation to reject.
func foldPairs(s *schema.Schema, content []byte) []byte {
	var v any
	if s == nil || json.Unmarshal(content, &v) != nil {
		return content
	}
	folded, err := json.Marshal(FromGenaiValue(s, v))
	if err != nil {
		return content
	}
	return folded
}

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.RLock()
	if p.client != nil {
		defer p.mu.RUnlock()
		return p.client, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double check
	if p.client != nil {
		return p.client, nil
	}

	opts := append(append([]option.ClientOption{}, p.clientOpts...), option.WithAPIKey(p.apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	if err != nil {
		slog.Warn("failed to close genai client", "error", err)
	}
	p.client = nil
	return err
}
