// Package llm assembles extraction prompts and runs them against a
// structured-output model provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alereyleyva/extractify/internal/schema"
)

const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

var ErrUnsupportedProvider = errors.New("unsupported llm provider")

// Model is a configured language model.
type Model struct {
	ID       string
	Provider string
	Name     string
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// GenerateRequest is a single structured-output call. Content returned by
// the provider must be a JSON document matching Schema.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Schema       *schema.Schema
}

type GenerateResponse struct {
	Content []byte
	Usage   Usage
}

// Provider is a model backend able to honour an output schema.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Error reports a failed or non-conforming model call.
type Error struct {
	Provider string
	Model    string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	parts := []string{"llm", e.Provider}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}
