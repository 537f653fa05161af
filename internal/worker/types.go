package worker

import (
	"context"

	"khabar/features/job"
	"khabar/internal/ingest"
	"khabar/internal/news"
)

type Ingester interface {
	Ingest(ctx context.Context, articles []news.Article) (ingest.Result, error)
}

type URLChecker interface {
	ContainsURL(ctx context.Context, url string) (bool, error)
}

type ArticleFetcher interface {
	FetchArticle(ctx context.Context, url string) (news.Article, error)
}

type JobRecorder interface {
	Record(ctx context.Context, j *job.Job)
}
