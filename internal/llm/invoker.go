package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alereyleyva/extractify/internal/schema"
)

// Document is the extracted text of one source file.
type Document struct {
	FileName    string
	SourceOrder int
	Text        string
}

type Request struct {
	Model        Model
	SystemPrompt string
	Compiled     *schema.Compiled
	Documents    []Document
}

type Result struct {
	Data  map[string]any
	Raw   json.RawMessage
	Usage Usage
}

// Invoker performs exactly one model call per extraction. There is no
// re-prompting on bad output.
type Invoker struct {
	providers map[string]Provider
}

func NewInvoker(providers map[string]Provider) *Invoker {
	return &Invoker{providers: providers}
}

func (i *Invoker) Extract(ctx context.Context, req Request) (*Result, error) {
	p, ok := i.providers[req.Model.Provider]
	if !ok || p == nil {
		return nil, &Error{Provider: req.Model.Provider, Model: req.Model.Name, Message: "provider not configured", Cause: ErrUnsupportedProvider}
	}

	prompt := BuildPrompt(req.Compiled.Instructions, req.Documents)

	slog.InfoContext(ctx, "llm.extract.start", "provider", req.Model.Provider, "model", req.Model.Name, "documents", len(req.Documents), "prompt_len", len(prompt))
	start := time.Now()

	resp, err := p.Generate(ctx, GenerateRequest{
		Model:        req.Model.Name,
		SystemPrompt: req.SystemPrompt,
		Prompt:       prompt,
		Schema:       req.Compiled.Schema,
	})
	if err != nil {
		return nil, &Error{Provider: req.Model.Provider, Model: req.Model.Name, Message: "generate failed", Cause: err}
	}

	content := stripCodeFence(resp.Content)
	if len(content) == 0 {
		return nil, &Error{Provider: req.Model.Provider, Model: req.Model.Name, Message: "empty response"}
	}
	if err := schema.Validate(req.Compiled.Schema, content); err != nil {
		return nil, &Error{Provider: req.Model.Provider, Model: req.Model.Name, Message: "non-conforming output", Cause: err}
	}

	var data map[string]any
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, &Error{Provider: req.Model.Provider, Model: req.Model.Name, Message: "decode output", Cause: err}
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	slog.InfoContext(ctx, "llm.extract.ok",
		"provider", req.Model.Provider,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{Data: data, Raw: json.RawMessage(content), Usage: usage}, nil
}

// BuildPrompt appends every document, in source order, under its separator
// line.
func BuildPrompt(instructions string, docs []Document) string {
	ordered := make([]Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].SourceOrder < ordered[b].SourceOrder })

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n")
	for _, d := range ordered {
		b.WriteString("\n")
		b.WriteString(schema.DocumentSeparator(d.FileName))
		b.WriteString("\n")
		b.WriteString(d.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// stripCodeFence removes a ```json fence some models wrap output in.
func stripCodeFence(content []byte) []byte {
	c := bytes.TrimSpace(content)
	if !bytes.HasPrefix(c, []byte("```")) {
		return c
	}
	c = bytes.TrimPrefix(c, []byte("```"))
	if nl := bytes.IndexByte(c, '\n'); nl >= 0 {
		c = c[nl+1:]
	}
	c = bytes.TrimSuffix(bytes.TrimSpace(c), []byte("```"))
	return bytes.TrimSpace(c)
}
