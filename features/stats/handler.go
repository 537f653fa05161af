package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"khabar/features/feed"
	"khabar/internal/middleware"
	"khabar/internal/scraper"
	"khabar/internal/store"
)

type Reporter interface {
	StorageReport(ctx context.Context) (store.Report, error)
}

type JobCounter interface {
	Count(ctx context.Context) (int, error)
}

type FeedLister interface {
	List(ctx context.Context) ([]feed.Feed, error)
}

type Handler struct {
	reporter Reporter
	jobs     JobCounter
	feeds    FeedLister
}

func NewHandler(r Reporter, j JobCounter, f FeedLister) *Handler {
	return &Handler{reporter: r, jobs: j, feeds: f}
}

type StatsResponse struct {
	store.Report
	FailedJobs int `json:"failed_jobs"`
	// EnabledFeeds counts enabled feeds per kind.
	EnabledFeeds map[string]int `json:"enabled_feeds"`
}

// GetStats serves the storage report with the ledger and catalog sizes.
// ?format=text returns the report as the CLI prints it.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var resp StatsResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp.Report, err = h.reporter.StorageReport(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		resp.FailedJobs, err = h.jobs.Count(gctx)
		return err
	})
	g.Go(func() error {
		feeds, err := h.feeds.List(gctx)
		if err != nil {
			return err
		}
		resp.EnabledFeeds = countEnabled(feeds)
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "failed to collect stats", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to collect stats", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := resp.WriteText(w); err != nil {
			slog.ErrorContext(ctx, "failed to write report", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func countEnabled(feeds []feed.Feed) map[string]int {
	out := map[string]int{scraper.KindRSS: 0, scraper.KindSitemap: 0}
	for _, f := range feeds {
		if f.Enabled {
			out[f.Kind]++
		}
	}
	return out
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]any{
		"error":         map[string]string{"code": code, "message": message},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
