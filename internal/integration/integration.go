// Package integration delivers completed extraction runs to external sinks.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alereyleyva/extractify/internal/crypto"
	"github.com/alereyleyva/extractify/internal/llm"
)

const (
	TypeWebhook  = "webhook"
	TypeSheets   = "sheets"
	TypePostgres = "postgres"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySucceeded  DeliveryStatus = "succeeded"
	DeliveryFailed     DeliveryStatus = "failed"
)

var (
	ErrInvalidConfig   = errors.New("invalid integration config")
	ErrMissingOAuth    = errors.New("sheets target has no oauth connection")
	ErrMissingMapping  = errors.New("no column mapping for model version")
	ErrUnsupportedType = errors.New("unsupported integration type")
)

// Target is a configured delivery sink. Config is decoded per Type.
type Target struct {
	ID      string
	OwnerID string
	Type    string
	Name    string
	Enabled bool
	Config  json.RawMessage
	Version int64
}

// Run is the completed extraction handed to the orchestrator.
type Run struct {
	ID             string
	OwnerID        string
	ModelID        string
	ModelVersionID string
	LLMModelID     string
	Status         string
	Result         json.RawMessage
	Normalized     json.RawMessage
	Usage          *llm.Usage
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// Outcome is the terminal state of one delivery attempt loop.
type Outcome struct {
	Status         DeliveryStatus
	ResponseStatus *int
	Err            error
}

func succeeded(code int) Outcome {
	return Outcome{Status: DeliverySucceeded, ResponseStatus: &code}
}

func failed(code *int, err error) Outcome {
	return Outcome{Status: DeliveryFailed, ResponseStatus: code, Err: err}
}

// StatusError is a non-2xx response from a sink.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the status is worth another attempt after a
// backoff.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Secrets encrypts and decrypts stored credentials.
type Secrets interface {
	Encrypt(plaintext string) (*crypto.EncryptedSecret, error)
	Decrypt(s *crypto.EncryptedSecret) (string, error)
}

type TargetStore interface {
	ListEnabled(ctx context.Context, ownerID string, ids []string) ([]Target, error)
	// UpdateConfig writes config only if the stored version still equals
	// version, bumping it. It reports whether the write happened.
	UpdateConfig(ctx context.Context, id string, version int64, config json.RawMessage) (bool, error)
}

type DeliveryStore interface {
	Create(ctx context.Context, targetID, extractionID string) (string, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, status DeliveryStatus, responseStatus *int, errorMessage *string) error
}
