package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"khabar/internal/middleware"
	"khabar/internal/retrieval"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type request struct {
	Query    string `json:"query"`
	Question string `json:"question"`
	retrieval.Overrides
}

func (r request) text() string {
	if r.Question != "" {
		return r.Question
	}
	return r.Query
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := h.service.Ask(ctx, req.text(), &req.Overrides)
	if err != nil {
		h.fail(ctx, w, "ask failed", err)
		return
	}
	h.writeData(ctx, w, answer)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.Search(ctx, req.text(), &req.Overrides)
	if err != nil {
		h.fail(ctx, w, "search failed", err)
		return
	}
	h.writeData(ctx, w, res)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, ErrEmptyQuestion) {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	slog.ErrorContext(ctx, msg, "error", err)
	h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
