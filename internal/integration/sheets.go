package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alereyleyva/extractify/internal/retry"
)

const sheetsMaxAttempts = 3

// Tokens resolves access tokens for sheets targets.
type Tokens interface {
	Resolve(ctx context.Context, targetID string, o *SheetsOAuth, force bool) (string, bool, error)
}

// SheetsSender appends one row per completed run. A 401 forces a token
// refresh, 429 and 5xx back off, and all of them share one attempt budget.
type SheetsSender struct {
	api     SheetsAPI
	tokens  Tokens
	targets TargetStore
	backoff *retry.Config
	sleep   func(context.Context, time.Duration) error
}

func NewSheetsSender(api SheetsAPI, tokens Tokens, targets TargetStore) *SheetsSender {
	return &SheetsSender{
		api:     api,
		tokens:  tokens,
		targets: targets,
		backoff: &retry.Config{
			MaxAttempts:  sheetsMaxAttempts,
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2,
			JitterFactor: 0.25,
		},
		sleep: retry.Sleep,
	}
}

func (s *SheetsSender) Deliver(ctx context.Context, target Target, run Run) Outcome {
	cfg, err := ParseSheetsConfig(target.Config)
	if err != nil {
		return failed(nil, err)
	}
	if cfg.OAuth == nil {
		return failed(nil, ErrMissingOAuth)
	}
	mapping, ok := cfg.MappingFor(run.ModelVersionID)
	if !ok {
		return failed(nil, fmt.Errorf("%w: %s", ErrMissingMapping, run.ModelVersionID))
	}

	var data any
	if len(run.Normalized) > 0 {
		if err := json.Unmarshal(run.Normalized, &data); err != nil {
			return failed(nil, fmt.Errorf("decode result: %w", err))
		}
	}

	oauthChanged := false
	defer func() {
		if oauthChanged {
			s.persistOAuth(ctx, target, cfg.OAuth)
		}
	}()

	var (
		lastErr  error
		lastCode *int
		force    bool
	)
	for attempt := 0; attempt < s.backoff.MaxAttempts; attempt++ {
		token, refreshed, err := s.tokens.Resolve(ctx, target.ID, cfg.OAuth, force)
		if refreshed {
			oauthChanged = true
		}
		if err != nil {
			return failed(lastCode, err)
		}
		force = false

		lastErr = s.appendRow(ctx, token, cfg, mapping, data)
		if lastErr == nil {
			slog.InfoContext(ctx, "sheets row appended", "target_id", target.ID, "attempt", attempt+1)
			return succeeded(http.StatusOK)
		}

		var se *StatusError
		if errors.As(lastErr, &se) {
			code := se.StatusCode
			lastCode = &code

			if code == http.StatusUnauthorized {
				slog.WarnContext(ctx, "sheets rejected token, forcing refresh", "target_id", target.ID, "attempt", attempt+1)
				force = true
				continue
			}
			if !se.IsRetryable() {
				break
			}
		} else if !retry.IsRetryable(lastErr) {
			break
		}
		if attempt < s.backoff.MaxAttempts-1 {
			delay := s.backoff.Delay(attempt)
			slog.WarnContext(ctx, "sheets append failed, backing off", "target_id", target.ID, "error", lastErr, "attempt", attempt+1, "delay", delay)
			if err := s.sleep(ctx, delay); err != nil {
				return failed(lastCode, err)
			}
		}
	}
	return failed(lastCode, lastErr)
}

func (s *SheetsSender) appendRow(ctx context.Context, token string, cfg *SheetsConfig, mapping *ModelMapping, data any) error {
	existing, err := s.api.ReadRow(ctx, token, cfg.SpreadsheetID, cfg.SheetName, cfg.HeaderRow)
	if err != nil {
		return err
	}

	required := make([]string, 0, len(mapping.Columns))
	for _, c := range mapping.Columns {
		required = append(required, c.Header)
	}
	header, changed := MergeHeaders(existing, required)
	if changed {
		if err := s.api.WriteRow(ctx, token, cfg.SpreadsheetID, cfg.SheetName, cfg.HeaderRow, header); err != nil {
			return err
		}
	}

	return s.api.AppendRow(ctx, token, cfg.SpreadsheetID, cfg.SheetName, BuildRow(header, mapping.Columns, data))
}

// persistOAuth writes the refreshed oauth block back onto the target config.
// Losing the version race is logged only.
func (s *SheetsSender) persistOAuth(ctx context.Context, target Target, o *SheetsOAuth) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(target.Config, &fields); err != nil {
		slog.ErrorContext(ctx, "failed to decode target config", "target_id", target.ID, "error", err)
		return
	}
	encoded, err := json.Marshal(o)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode oauth", "target_id", target.ID, "error", err)
		return
	}
	fields["oauth"] = encoded
	updated, err := json.Marshal(fields)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode target config", "target_id", target.ID, "error", err)
		return
	}

	ok, err := s.targets.UpdateConfig(ctx, target.ID, target.Version, updated)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist oauth tokens", "target_id", target.ID, "error", err)
		return
	}
	if !ok {
		slog.WarnContext(ctx, "oauth tokens not persisted, target changed concurrently", "target_id", target.ID, "version", target.Version)
	}
}
