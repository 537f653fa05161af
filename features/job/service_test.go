package job

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/internal/config"
)

type slowPublisher struct {
	sleep     time.Duration
	err       error
	LastTopic string
	LastBody  []byte
}

func (m *slowPublisher) Publish(topic string, body []byte) error {
	m.LastTopic = topic
	m.LastBody = body
	time.Sleep(m.sleep)
	return m.err
}

type memRepo struct {
	jobs    map[string]*Job
	deleted []string
	saveErr error
}

func newMemRepo(jobs ...*Job) *memRepo {
	r := &memRepo{jobs: map[string]*Job{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (m *memRepo) Save(ctx context.Context, j *Job) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	j.ID = "new"
	m.jobs[j.ID] = j
	return nil
}

func (m *memRepo) List(ctx context.Context, f Filter) ([]Job, error) {
	var out []Job
	for _, j := range m.jobs {
		if f.Host == "" || strings.Contains(j.URL, "://"+f.Host+"/") {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memRepo) Get(ctx context.Context, id string) (*Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return j, nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.jobs, id)
	return nil
}

func (m *memRepo) Count(ctx context.Context) (int, error) { return len(m.jobs), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestRetry_Timeout(t *testing.T) {
	repo := newMemRepo(&Job{ID: "1", Payload: []byte("{}")})
	pub := &slowPublisher{sleep: 200 * time.Millisecond}
	service := NewService(repo, pub, testLogger())
	service.publishTimeout = 20 * time.Millisecond

	err := service.Retry(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, "timeout waiting for NSQ publish", err.Error())
	assert.Empty(t, repo.deleted, "job must survive a failed publish")
}

func TestRetry_PublishesFetchTaskAndDeletes(t *testing.T) {
	payload := []byte(`{"url":"https://example.com/a"}`)
	repo := newMemRepo(&Job{ID: "1", URL: "https://example.com/a", Payload: payload})
	pub := &slowPublisher{}
	service := NewService(repo, pub, testLogger())

	require.NoError(t, service.Retry(context.Background(), "1"))
	assert.Equal(t, config.TopicFetch, pub.LastTopic)
	assert.Equal(t, payload, pub.LastBody)
	assert.Equal(t, []string{"1"}, repo.deleted)
}

func TestRetry_PublishError(t *testing.T) {
	repo := newMemRepo(&Job{ID: "1", Payload: []byte("{}")})
	pub := &slowPublisher{err: errors.New("nsqd down")}
	service := NewService(repo, pub, testLogger())

	err := service.Retry(context.Background(), "1")
	assert.EqualError(t, err, "nsqd down")
	assert.Empty(t, repo.deleted)
}

func TestRetry_NoPublisher(t *testing.T) {
	repo := newMemRepo(&Job{ID: "1", Payload: []byte("{}")})
	service := NewService(repo, nil, testLogger())

	assert.ErrorIs(t, service.Retry(context.Background(), "1"), ErrNoPublisher)
}

func TestService_CountAndList(t *testing.T) {
	repo := newMemRepo(&Job{ID: "1"}, &Job{ID: "2"})
	service := NewService(repo, nil, testLogger())

	count, err := service.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	jobs, err := service.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestService_Record(t *testing.T) {
	repo := newMemRepo()
	service := NewService(repo, nil, testLogger())

	service.Record(context.Background(), &Job{URL: "https://example.com/x", Handler: "fetch", Error: "boom"})
	assert.Contains(t, repo.jobs, "new")

	repo.saveErr = errors.New("db down")
	assert.NotPanics(t, func() {
		service.Record(context.Background(), &Job{URL: "https://example.com/y"})
	})
}

func TestRetryAll_FiltersByHost(t *testing.T) {
	repo := newMemRepo(
		&Job{ID: "1", URL: "https://www.bbc.com/news/a", Payload: []byte(`{"url":"https://www.bbc.com/news/a"}`)},
		&Job{ID: "2", URL: "https://www.thehindu.com/news/b", Payload: []byte(`{}`)},
		&Job{ID: "3", URL: "https://www.bbc.com/news/c", Payload: []byte(`{}`)},
	)
	service := NewService(repo, &slowPublisher{}, testLogger())

	n, err := service.RetryAll(context.Background(), Filter{Host: "www.bbc.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "3"}, repo.deleted)
	assert.Contains(t, repo.jobs, "2")
}

func TestRetryAll_StopsAtFirstFailure(t *testing.T) {
	repo := newMemRepo(&Job{ID: "1", Payload: []byte(`{}`)}, &Job{ID: "2", Payload: []byte(`{}`)})
	service := NewService(repo, &slowPublisher{err: errors.New("nsqd down")}, testLogger())

	n, err := service.RetryAll(context.Background(), Filter{})
	assert.ErrorContains(t, err, "retry job 1: nsqd down")
	assert.Equal(t, 0, n)
	assert.Len(t, repo.jobs, 2)
}

func TestDismiss(t *testing.T) {
	repo := newMemRepo(&Job{ID: "1"})
	service := NewService(repo, nil, testLogger())

	require.NoError(t, service.Dismiss(context.Background(), "1"))
	assert.Equal(t, []string{"1"}, repo.deleted)
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		query   string
		want    Filter
		wantErr bool
	}{
		{"", Filter{Limit: DefaultListLimit}, false},
		{"host=WWW.BBC.COM&limit=5", Filter{Host: "www.bbc.com", Limit: 5}, false},
		{"limit=0", Filter{}, true},
		{"limit=abc", Filter{}, true},
		{"limit=1001", Filter{}, true},
		{"host=bbc.com/news", Filter{}, true},
		{"host=%25", Filter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := ParseFilter(q)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_URLPattern(t *testing.T) {
	assert.Equal(t, "%", Filter{}.urlPattern())
	assert.Equal(t, "%://www.bbc.com/%", Filter{Host: "www.bbc.com"}.urlPattern())
	assert.Equal(t, DefaultListLimit, Filter{Limit: 5000}.limit())
}
