package job_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/features/job"
	"khabar/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.SetupPostgres()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j1 := &job.Job{
		URL:     "https://example.com/news/first",
		Handler: "fetch",
		Payload: json.RawMessage(`{"url": "https://example.com/news/first"}`),
		Error:   "status 503",
	}
	require.NoError(t, repo.Save(ctx, j1))
	require.NotEmpty(t, j1.ID)

	time.Sleep(100 * time.Millisecond)

	j2 := &job.Job{
		URL:     "https://example.com/news/second",
		Handler: "fetch",
		Payload: json.RawMessage(`{"url": "https://example.com/news/second"}`),
		Error:   "article too short",
		Retries: 1,
	}
	require.NoError(t, repo.Save(ctx, j2))

	jobs, err := repo.List(ctx, job.Filter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, j2.ID, jobs[0].ID, "Newest job should be first")
	assert.Equal(t, j1.ID, jobs[1].ID)

	jobs, err = repo.List(ctx, job.Filter{Host: "example.com", Limit: 1})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, j2.ID, jobs[0].ID)

	jobs, err = repo.List(ctx, job.Filter{Host: "other.org"})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	got, err := repo.Get(ctx, j2.ID)
	require.NoError(t, err)
	assert.Equal(t, j2.URL, got.URL)
	assert.Equal(t, 1, got.Retries)
	assert.JSONEq(t, string(j2.Payload), string(got.Payload))

	require.NoError(t, repo.Delete(ctx, j1.ID))
	assert.ErrorIs(t, repo.Delete(ctx, j1.ID), sql.ErrNoRows)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
