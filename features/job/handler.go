package job

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alereyleyva/extractify/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// List returns dead-lettered jobs, optionally narrowed to one extraction with
// ?extractionId=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	extractionID := r.URL.Query().Get("extractionId")

	slog.InfoContext(ctx, "listing failed jobs", "extraction_id", extractionID)

	jobs, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	data := make([]Summary, 0, len(jobs))
	undecodable := 0
	for _, j := range jobs {
		if extractionID != "" && j.ExtractionID != extractionID {
			continue
		}
		s := Summarize(j)
		if !s.Decodable {
			undecodable++
		}
		data = append(data, s)
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]int{"count": len(data), "undecodable": undecodable},
	})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	slog.InfoContext(ctx, "retrying job", "id", id)

	err := h.service.Retry(ctx, id)
	switch {
	case err == nil:
		middleware.WriteJSON(ctx, w, http.StatusOK, map[string]any{"data": "job retried"})
	case errors.Is(err, sql.ErrNoRows):
		middleware.WriteError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
	case errors.Is(err, ErrPublishTimeout):
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		middleware.WriteError(ctx, w, "QUEUE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}
