package scraper_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/internal/news"
	"khabar/internal/scraper"
)

type staticFeeds map[string][]scraper.Feed

func (s staticFeeds) Feeds(_ context.Context, kind string) ([]scraper.Feed, error) {
	return s[kind], nil
}

type recordingRecorder struct {
	mu   sync.Mutex
	urls []string
}

func (r *recordingRecorder) RecordFailure(_ context.Context, url, handler string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

var longParagraph = strings.Repeat("The committee reviewed the proposal in detail before voting. ", 5)

func newsSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var sitemapHits atomic.Int32
	mux := http.NewServeMux()
	var ts *httptest.Server

	page := func(title string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><head><title>%s</title></head><body><p>%s</p></body></html>`, title, longParagraph)
		}
	}
	mux.HandleFunc("/a", page("Story A"))
	mux.HandleFunc("/b", page("Story B"))
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Too short.</p></body></html>`))
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<rss><channel>
<item><title>Feed A</title><link>%[1]s/a</link><pubDate>Mon, 01 Jan 2024 09:00:00 +0000</pubDate></item>
<item><title>Feed Old</title><link>%[1]s/old</link></item>
<item><title>Feed Short</title><link>%[1]s/short</link></item>
<item><title>Feed B</title><link>%[1]s/b</link><pubDate>garbage</pubDate></item>
</channel></rss>`, ts.URL)
	})
	mux.HandleFunc("/broken-feed", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>nope</html>"))
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		sitemapHits.Add(1)
		fmt.Fprintf(w, `<sitemapindex>
<sitemap><loc>%[1]s/sitemap-2023.xml</loc></sitemap>
<sitemap><loc>%[1]s/sitemap-2024.xml</loc></sitemap>
</sitemapindex>`, ts.URL)
	})
	mux.HandleFunc("/sitemap-2023.xml", func(w http.ResponseWriter, r *http.Request) {
		sitemapHits.Add(1)
		fmt.Fprintf(w, `<urlset><url><loc>%s/from-2023</loc></url></urlset>`, ts.URL)
	})
	mux.HandleFunc("/sitemap-2024.xml", func(w http.ResponseWriter, r *http.Request) {
		sitemapHits.Add(1)
		fmt.Fprintf(w, `<urlset>
<url><loc>%[1]s/a</loc></url>
<url><loc>%[1]s/b#comments</loc></url>
<url><loc>%[1]s/tag/politics</loc></url>
<url><loc>https://elsewhere.example.org/x</loc></url>
<url><loc>%[1]s/a</loc></url>
</urlset>`, ts.URL)
	})

	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &sitemapHits
}

func newFetcher(rec scraper.FailureRecorder) (*scraper.Client, *scraper.Fetcher) {
	client := testClient(1)
	return client, scraper.NewFetcher(client, scraper.FetcherConfig{MinWords: 20, Concurrency: 3}, rec)
}

func TestFetcher_FetchArticles(t *testing.T) {
	ts, _ := newsSite(t)
	rec := &recordingRecorder{}
	_, fetcher := newFetcher(rec)

	urls := []string{ts.URL + "/b", ts.URL + "/short", ts.URL + "/missing", ts.URL + "/a"}
	articles, stats, err := fetcher.FetchArticles(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, scraper.FetchStats{Fetched: 2, Failed: 2}, stats)
	require.Len(t, articles, 2)
	assert.Equal(t, ts.URL+"/b", articles[0].URL)
	assert.Equal(t, "Story B", articles[0].Title)
	assert.Equal(t, ts.URL+"/a", articles[1].URL)
	assert.NotEmpty(t, articles[0].Date)
	assert.Equal(t, "127.0.0.1", strings.Split(articles[0].Source, ":")[0])
	assert.ElementsMatch(t, []string{ts.URL + "/short", ts.URL + "/missing"}, rec.urls)
}

func TestFeedSource_Articles(t *testing.T) {
	ts, _ := newsSite(t)
	client, fetcher := newFetcher(nil)

	feeds := staticFeeds{scraper.KindRSS: {
		{URL: ts.URL + "/broken-feed"},
		{URL: ts.URL + "/feed", Name: "Daily"},
	}}
	src := scraper.NewFeedSource(client, fetcher, feeds, 10)

	seen := news.NewURLSet(ts.URL + "/old")
	articles, err := src.Articles(context.Background(), seen)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "Feed A", articles[0].Title)
	assert.Equal(t, "2024-01-01", articles[0].Date)
	assert.Equal(t, "Daily", articles[0].Source)
	assert.Equal(t, "Feed B", articles[1].Title)
}

func TestFeedSource_MaxPerFeed(t *testing.T) {
	ts, _ := newsSite(t)
	client, fetcher := newFetcher(nil)

	src := scraper.NewFeedSource(client, fetcher, staticFeeds{scraper.KindRSS: {{URL: ts.URL + "/feed"}}}, 1)
	articles, err := src.Articles(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, ts.URL+"/a", articles[0].URL)
}

func TestProbeFeeds(t *testing.T) {
	ts, _ := newsSite(t)
	client := testClient(1)

	working := scraper.ProbeFeeds(context.Background(), client, []scraper.Feed{
		{URL: ts.URL + "/feed"},
		{URL: ts.URL + "/broken-feed"},
		{URL: ts.URL + "/feed"},
		{URL: ts.URL + "/missing"},
	})
	assert.Equal(t, []scraper.Feed{{URL: ts.URL + "/feed"}}, working)
}

func TestSitemapSource_Discover(t *testing.T) {
	ts, hits := newsSite(t)
	client, fetcher := newFetcher(nil)

	src := scraper.NewSitemapSource(client, fetcher, staticFeeds{scraper.KindSitemap: {{URL: ts.URL + "/sitemap.xml"}}}, []string{"/tag/"})

	urls, err := src.Discover(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{ts.URL + "/a", ts.URL + "/b"}, urls)
	// The index and the 2024 child only.
	assert.Equal(t, int32(2), hits.Load())

	articles, err := src.Fetch(context.Background(), urls)
	require.NoError(t, err)
	assert.Len(t, articles, 2)
}
