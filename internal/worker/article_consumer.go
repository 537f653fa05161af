package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"khabar/internal/ingest"
	"khabar/internal/middleware"
	"khabar/internal/news"
)

// ArticleConsumer ingests articles pushed on the news.article topic.
type ArticleConsumer struct {
	ingester Ingester
}

func NewArticleConsumer(i Ingester) *ArticleConsumer {
	return &ArticleConsumer{ingester: i}
}

func (h *ArticleConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event ArticleEvent
	err := json.Unmarshal(m.Body, &event)

	correlationID := event.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil
	}
	if err := event.Article.Validate(); err != nil {
		slog.ErrorContext(ctx, "invalid article, dropping", "url", event.URL, "error", err)
		return nil
	}

	return h.handle(ctx, event.Article)
}

func (h *ArticleConsumer) handle(ctx context.Context, a news.Article) error {
	res, err := h.ingester.Ingest(ctx, []news.Article{a})
	if err != nil {
		slog.ErrorContext(ctx, "article ingestion failed", "url", a.URL, "error", err)
		return err
	}
	logIngested(ctx, a.URL, res)
	return nil
}

func logIngested(ctx context.Context, url string, res ingest.Result) {
	if res.Rows == 0 {
		slog.InfoContext(ctx, "article already indexed", "url", url)
		return
	}
	slog.InfoContext(ctx, "article ingested", "url", url, "chunks", res.Chunks, "vectors", res.Vectors)
}
