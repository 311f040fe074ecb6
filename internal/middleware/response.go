package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSON encodes v as the response body with status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// WriteError writes the error envelope carrying the request's correlation id.
func WriteError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	WriteJSON(ctx, w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": GetCorrelationID(ctx),
	})
}
