package feed_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/features/feed"
)

func TestParseCatalog(t *testing.T) {
	data := []byte(`
feeds:
  - kind: rss
    name: Example
    url: https://example.com/rss
    language: en
  - kind: sitemap
    url: https://example.com/sitemap.xml
    enabled: false
`)
	feeds, err := feed.ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	assert.Equal(t, feed.Feed{Kind: "rss", URL: "https://example.com/rss", Name: "Example", Language: "en", Enabled: true}, feeds[0])
	assert.Equal(t, "sitemap", feeds[1].Kind)
	assert.False(t, feeds[1].Enabled)
}

func TestParseCatalog_Malformed(t *testing.T) {
	_, err := feed.ParseCatalog([]byte("feeds: [unclosed"))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	t.Run("MissingFileIsEmpty", func(t *testing.T) {
		feeds, err := feed.LoadCatalog(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		assert.Empty(t, feeds)
	})

	t.Run("ReadsFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "feeds.yaml")
		require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - url: https://example.com/rss\n"), 0o600))

		feeds, err := feed.LoadCatalog(path)
		require.NoError(t, err)
		require.Len(t, feeds, 1)
		assert.True(t, feeds[0].Enabled)
	})
}
