package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alereyleyva/extractify/internal/llm"
)

const (
	HeaderSignature = "X-Extractify-Signature"
	EventCompleted  = "extraction.completed"
	PayloadVersion  = "v1"

	maxErrorBody = 4096
)

type WebhookPayload struct {
	Event      string            `json:"event"`
	Version    string            `json:"version"`
	Extraction ExtractionSummary `json:"extraction"`
	Result     json.RawMessage   `json:"result"`
}

type ExtractionSummary struct {
	ID             string     `json:"id"`
	ModelID        string     `json:"modelId"`
	ModelVersionID string     `json:"modelVersionId"`
	LLMModelID     string     `json:"llmModelId"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt"`
	Status         string     `json:"status"`
	Usage          *llm.Usage `json:"usage"`
}

// NewWebhookPayload builds the versioned payload for a completed run.
func NewWebhookPayload(run Run) WebhookPayload {
	result := run.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return WebhookPayload{
		Event:   EventCompleted,
		Version: PayloadVersion,
		Extraction: ExtractionSummary{
			ID:             run.ID,
			ModelID:        run.ModelID,
			ModelVersionID: run.ModelVersionID,
			LLMModelID:     run.LLMModelID,
			CreatedAt:      run.CreatedAt,
			CompletedAt:    run.CompletedAt,
			Status:         run.Status,
			Usage:          run.Usage,
		},
		Result: result,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type WebhookSender struct {
	client  *http.Client
	secrets Secrets
}

func NewWebhookSender(client *http.Client, secrets Secrets) *WebhookSender {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookSender{client: client, secrets: secrets}
}

// Deliver posts the run once. The sender never retries.
func (s *WebhookSender) Deliver(ctx context.Context, target Target, run Run) Outcome {
	cfg, err := ParseWebhookConfig(target.Config)
	if err != nil {
		return failed(nil, err)
	}

	body, err := json.Marshal(NewWebhookPayload(run))
	if err != nil {
		return failed(nil, fmt.Errorf("marshal payload: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return failed(nil, fmt.Errorf("build request: %w", err))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	if cfg.Secret != nil {
		secret, err := s.secrets.Decrypt(cfg.Secret)
		if err != nil {
			return failed(nil, fmt.Errorf("decrypt webhook secret: %w", err))
		}
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return failed(nil, fmt.Errorf("webhook request: %w", err))
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if code >= 200 && code < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		slog.InfoContext(ctx, "webhook delivered", "target_id", target.ID, "status", code)
		return succeeded(code)
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return failed(&code, &StatusError{StatusCode: code, Body: string(snippet)})
}
