package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"khabar/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// List serves GET /jobs/failed?host=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	jobs, err := h.service.List(ctx, f)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	slog.InfoContext(ctx, "retrying job", "id", id)

	if err := h.service.Retry(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		h.fail(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"data": "job retried"})
}

// RetryAll serves POST /jobs/retry?host=&limit=. On failure the response
// still reports how many jobs were republished first.
func (h *Handler) RetryAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	n, err := h.service.RetryAll(ctx, f)
	if err != nil {
		slog.ErrorContext(ctx, "bulk retry stopped", "retried", n, "error", err)
		h.writeJSON(ctx, w, http.StatusBadGateway, map[string]any{
			"error":         map[string]string{"code": "PUBLISH_ERROR", "message": err.Error()},
			"meta":          map[string]int{"retried": n},
			"correlationId": middleware.GetCorrelationID(ctx),
		})
		return
	}
	slog.InfoContext(ctx, "bulk retry done", "retried", n, "host", f.Host)
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"meta": map[string]int{"retried": n}})
}

func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Dismiss(ctx, r.PathValue("id")); err != nil {
		h.fail(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
	case errors.Is(err, ErrNoPublisher), errors.Is(err, ErrPublishTimeout):
		h.writeError(ctx, w, "PUBLISH_ERROR", err.Error(), http.StatusServiceUnavailable)
	default:
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]any{
		"error":         map[string]string{"code": code, "message": message},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
