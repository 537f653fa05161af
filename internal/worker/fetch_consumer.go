package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"khabar/internal/middleware"
	"khabar/internal/news"
	"khabar/internal/scraper"
)

// FetchConsumer fetches single article URLs from the news.fetch topic and
// ingests them. Fetch failures go to the failed job ledger instead of being
// requeued; storage failures are requeued by NSQ.
type FetchConsumer struct {
	checker  URLChecker
	fetcher  ArticleFetcher
	ingester Ingester
	ledger   *FailureLedger
}

func NewFetchConsumer(c URLChecker, f ArticleFetcher, i Ingester, ledger *FailureLedger) *FetchConsumer {
	return &FetchConsumer{checker: c, fetcher: f, ingester: i, ledger: ledger}
}

func (h *FetchConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task FetchTask
	err := json.Unmarshal(m.Body, &task)

	if task.CorrelationID == "" {
		task.CorrelationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), task.CorrelationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil
	}
	if task.URL == "" {
		slog.ErrorContext(ctx, "missing url, dropping")
		return nil
	}

	return h.handle(ctx, task)
}

func (h *FetchConsumer) handle(ctx context.Context, task FetchTask) error {
	seen, err := h.checker.ContainsURL(ctx, task.URL)
	if err != nil {
		return err
	}
	if seen {
		slog.InfoContext(ctx, "url already indexed, skipping", "url", task.URL)
		return nil
	}

	a, err := h.fetcher.FetchArticle(ctx, task.URL)
	if err != nil {
		slog.WarnContext(ctx, "fetch failed", "url", task.URL, "attempt", task.Attempt, "error", err)
		if h.ledger != nil {
			task.Attempt++
			h.ledger.record(ctx, task, scraper.HandlerFetch, err)
		}
		return nil
	}

	res, err := h.ingester.Ingest(ctx, []news.Article{a})
	if err != nil {
		slog.ErrorContext(ctx, "article ingestion failed", "url", a.URL, "error", err)
		return err
	}
	logIngested(ctx, a.URL, res)
	return nil
}
