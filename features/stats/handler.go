package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alereyleyva/extractify/internal/middleware"
)

type RunRepo interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type DeliveryRepo interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	runRepo      RunRepo
	deliveryRepo DeliveryRepo
	jobRepo      JobRepo
}

func NewHandler(r RunRepo, d DeliveryRepo, j JobRepo) *Handler {
	return &Handler{runRepo: r, deliveryRepo: d, jobRepo: j}
}

type StatsResponse struct {
	Runs       map[string]int `json:"runs"`
	Deliveries map[string]int `json:"deliveries"`
	FailedJobs int            `json:"failedJobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	runs, err := h.runRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count runs", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count runs", http.StatusInternalServerError)
		return
	}

	deliveries, err := h.deliveryRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count deliveries", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count deliveries", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		middleware.WriteError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Runs:       runs,
		Deliveries: deliveries,
		FailedJobs: jCount,
	}

	middleware.WriteJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": resp})
}
