package settings

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
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context())
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeData(r.Context(), w, s)
}

// UpdateSettings replaces every tunable.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.svc.Update(r.Context(), &s); err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.writeData(r.Context(), w, s)
}

// PatchSettings changes the tunables present in the body.
func (h *Handler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	var p Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.svc.Patch(r.Context(), p)
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	slog.InfoContext(r.Context(), "settings patched", "top_k", s.TopK, "min_similarity", s.MinSimilarity)
	h.writeData(r.Context(), w, s)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(ctx, w, "NOT_FOUND", "settings have not been seeded", http.StatusNotFound)
	case errors.Is(err, ErrInvalidSettings):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "settings request failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": v}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":         map[string]string{"code": code, "message": message},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
