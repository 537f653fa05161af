package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"khabar/features/job"
	"khabar/internal/ingest"
	"khabar/internal/news"
)

type MockIngester struct{ mock.Mock }

func (m *MockIngester) Ingest(ctx context.Context, articles []news.Article) (ingest.Result, error) {
	args := m.Called(ctx, articles)
	return args.Get(0).(ingest.Result), args.Error(1)
}

type MockChecker struct{ mock.Mock }

func (m *MockChecker) ContainsURL(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) FetchArticle(ctx context.Context, url string) (news.Article, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(news.Article), args.Error(1)
}

type MockJobRecorder struct{ mock.Mock }

func (m *MockJobRecorder) Record(ctx context.Context, j *job.Job) {
	m.Called(ctx, j)
}
