package feed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/features/feed"
	"khabar/internal/scraper"
	"khabar/internal/testutils"
)

func TestFeedRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.SetupPostgres()
	defer s.Teardown()

	ctx := context.Background()
	svc := feed.NewService(feed.NewPostgresRepo(s.DB))

	catalog := []feed.Feed{
		{Kind: "rss", URL: "https://a.example/rss", Name: "A", Enabled: true},
		{Kind: "rss", URL: "https://b.example/rss", Name: "B", Enabled: false},
		{Kind: "sitemap", URL: "https://a.example/sitemap.xml", Name: "A", Enabled: true},
	}
	added, err := svc.Seed(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = svc.Seed(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, 0, added, "seeding is insert-or-ignore")

	rss, err := svc.Feeds(ctx, scraper.KindRSS)
	require.NoError(t, err)
	assert.Equal(t, []scraper.Feed{{URL: "https://a.example/rss", Name: "A"}}, rss)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, svc.Delete(ctx, all[0].ID))
	all, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
