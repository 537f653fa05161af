package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"khabar/internal/news"
)

// HandlerFetch names fetch failures in the failed job ledger.
const HandlerFetch = "fetch"

const maxTitleRunes = 120

// FailureRecorder keeps a record of URLs that could not be fetched so they
// can be retried later.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, url, handler string, cause error)
}

type FetcherConfig struct {
	MinWords    int
	Concurrency int
}

// FetchStats counts the outcome of a FetchArticles call.
type FetchStats struct {
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
}

// Fetcher turns article URLs into cleaned, validated articles.
type Fetcher struct {
	client   *Client
	cfg      FetcherConfig
	recorder FailureRecorder
	now      func() time.Time
}

// NewFetcher builds a Fetcher. recorder may be nil.
func NewFetcher(client *Client, cfg FetcherConfig, recorder FailureRecorder) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Fetcher{client: client, cfg: cfg, recorder: recorder, now: time.Now}
}

// FetchArticle downloads and extracts one article. The title falls back to
// the URL slug and the date to today.
func (f *Fetcher) FetchArticle(ctx context.Context, url string) (news.Article, error) {
	body, err := f.client.Get(ctx, url)
	if err != nil {
		return news.Article{}, err
	}
	page, err := ExtractArticle(body)
	if err != nil {
		return news.Article{}, fmt.Errorf("extract %s: %w", url, err)
	}

	text := CleanText(page.Text)
	if n := WordCount(text); n < f.cfg.MinWords {
		return news.Article{}, fmt.Errorf("%w: %s has %d words", ErrTooShort, url, n)
	}

	date, ok := news.NormalizeDate(page.Published)
	if !ok {
		date = f.now().UTC().Format(news.DateLayout)
		slog.DebugContext(ctx, "no publish date on page, using today", "url", url)
	}

	title := page.Title
	if title == "" {
		title = news.TitleFromURL(url)
	}

	a := news.Article{
		Title:  truncateRunes(title, maxTitleRunes),
		URL:    url,
		Date:   date,
		Source: HostOf(url),
		Text:   text,
	}
	if err := a.Validate(); err != nil {
		return news.Article{}, err
	}
	return a, nil
}

// FetchArticles fetches urls in parallel. Failed URLs are logged, recorded
// and skipped; only cancellation of ctx is returned as an error. Results
// keep the order of urls.
func (f *Fetcher) FetchArticles(ctx context.Context, urls []string) ([]news.Article, FetchStats, error) {
	results := make([]*news.Article, len(urls))
	var (
		mu    sync.Mutex
		stats FetchStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			a, err := f.FetchArticle(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.fail(gctx, u, err)
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				return nil
			}
			results[i] = &a
			mu.Lock()
			stats.Fetched++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	out := make([]news.Article, 0, stats.Fetched)
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, stats, nil
}

func (f *Fetcher) fail(ctx context.Context, url string, err error) {
	slog.WarnContext(ctx, "article fetch failed, skipping", "url", url, "error", err)
	if f.recorder != nil {
		f.recorder.RecordFailure(ctx, url, HandlerFetch, err)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
