package scraper

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"khabar/internal/news"
)

const (
	KindRSS     = "rss"
	KindSitemap = "sitemap"
)

// maxSitemapDepth bounds recursion through nested sitemap indexes.
const maxSitemapDepth = 4

type Feed struct {
	URL  string
	Name string
}

// FeedProvider lists the enabled feeds of a kind.
type FeedProvider interface {
	Feeds(ctx context.Context, kind string) ([]Feed, error)
}

// FeedList serves a fixed set of feeds for any kind.
type FeedList []Feed

func (l FeedList) Feeds(context.Context, string) ([]Feed, error) {
	return l, nil
}

// FeedSource produces new articles from RSS and Atom feeds.
type FeedSource struct {
	client     *Client
	fetcher    *Fetcher
	feeds      FeedProvider
	maxPerFeed int
}

func NewFeedSource(client *Client, fetcher *Fetcher, feeds FeedProvider, maxPerFeed int) *FeedSource {
	return &FeedSource{client: client, fetcher: fetcher, feeds: feeds, maxPerFeed: maxPerFeed}
}

// Articles returns articles from every enabled feed whose URL is not in
// seen. At most maxPerFeed unseen entries are fetched per feed. A feed that
// cannot be read or parsed is logged and skipped.
func (s *FeedSource) Articles(ctx context.Context, seen news.URLSet) ([]news.Article, error) {
	feeds, err := s.feeds.Feeds(ctx, KindRSS)
	if err != nil {
		return nil, err
	}

	claimed := news.NewURLSet()
	var out []news.Article
	for _, feed := range feeds {
		entries, err := s.entries(ctx, feed.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "skipping feed", "feed", feed.URL, "error", err)
			continue
		}

		var (
			urls  []string
			byURL = make(map[string]FeedEntry)
		)
		skipped := 0
		for _, e := range entries {
			if len(urls) >= s.maxPerFeed {
				break
			}
			if seen.Has(e.Link) || claimed.Has(e.Link) {
				skipped++
				continue
			}
			claimed.Add(e.Link)
			urls = append(urls, e.Link)
			byURL[e.Link] = e
		}

		articles, stats, err := s.fetcher.FetchArticles(ctx, urls)
		if err != nil {
			return nil, err
		}
		for _, a := range articles {
			e := byURL[a.URL]
			if e.Title != "" {
				a.Title = truncateRunes(e.Title, maxTitleRunes)
			}
			if d, ok := news.NormalizeDate(e.Published); ok {
				a.Date = d
			} else {
				slog.DebugContext(ctx, "feed entry has no usable date", "url", a.URL, "published", e.Published)
			}
			a.Source = sourceName(feed)
			out = append(out, a)
		}
		slog.InfoContext(ctx, "feed processed", "feed", feed.URL, "new", stats.Fetched, "failed", stats.Failed, "skipped", skipped)
	}
	return out, nil
}

func (s *FeedSource) entries(ctx context.Context, url string) ([]FeedEntry, error) {
	body, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseFeed(body)
}

func sourceName(f Feed) string {
	if f.Name != "" {
		return f.Name
	}
	return HostOf(f.URL)
}

// ProbeFeeds returns the feeds that currently yield at least one entry,
// without duplicates.
func ProbeFeeds(ctx context.Context, client *Client, feeds []Feed) []Feed {
	seen := make(map[string]bool)
	var working []Feed
	for _, f := range feeds {
		if seen[f.URL] {
			continue
		}
		seen[f.URL] = true

		body, err := client.Get(ctx, f.URL)
		if err != nil {
			slog.WarnContext(ctx, "feed probe failed", "feed", f.URL, "error", err)
			continue
		}
		entries, err := ParseFeed(body)
		if err != nil || len(entries) == 0 {
			slog.WarnContext(ctx, "feed has no entries", "feed", f.URL, "error", err)
			continue
		}
		slog.InfoContext(ctx, "feed ok", "feed", f.URL, "entries", len(entries))
		working = append(working, f)
	}
	slog.InfoContext(ctx, "feed probe finished", "working", len(working), "tested", len(feeds))
	return working
}

// SitemapSource discovers historical article URLs from sitemaps and
// fetches them.
type SitemapSource struct {
	client     *Client
	fetcher    *Fetcher
	feeds      FeedProvider
	exclusions []string
}

func NewSitemapSource(client *Client, fetcher *Fetcher, feeds FeedProvider, exclusions []string) *SitemapSource {
	return &SitemapSource{client: client, fetcher: fetcher, feeds: feeds, exclusions: exclusions}
}

// Discover returns the article URLs listed for year across every enabled
// sitemap. Only child sitemaps whose location contains the year are
// followed. Unreadable sitemaps are logged and skipped.
func (s *SitemapSource) Discover(ctx context.Context, year int) ([]string, error) {
	roots, err := s.feeds.Feeds(ctx, KindSitemap)
	if err != nil {
		return nil, err
	}

	y := strconv.Itoa(year)
	var all []string
	for _, root := range roots {
		found := s.walk(ctx, root.URL, y, 0)
		urls := FilterCandidateURLs(HostOf(root.URL), found, s.exclusions, nil)
		slog.InfoContext(ctx, "sitemap parsed", "sitemap", root.URL, "year", year, "urls", len(urls))
		all = append(all, urls...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return FilterCandidateURLs("", all, nil, nil), nil
}

func (s *SitemapSource) walk(ctx context.Context, loc, year string, depth int) []string {
	if depth > maxSitemapDepth || ctx.Err() != nil {
		return nil
	}
	body, err := s.client.Get(ctx, loc)
	if err != nil {
		slog.WarnContext(ctx, "skipping sitemap", "sitemap", loc, "error", err)
		return nil
	}
	sm, err := ParseSitemap(body)
	if err != nil {
		slog.WarnContext(ctx, "skipping malformed sitemap", "sitemap", loc, "error", err)
		return nil
	}

	urls := sm.URLs
	for _, child := range sm.Children {
		if !strings.Contains(child, year) {
			continue
		}
		urls = append(urls, s.walk(ctx, child, year, depth+1)...)
	}
	return urls
}

// Fetch downloads the given article URLs.
func (s *SitemapSource) Fetch(ctx context.Context, urls []string) ([]news.Article, error) {
	articles, stats, err := s.fetcher.FetchArticles(ctx, urls)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "batch fetched", "fetched", stats.Fetched, "failed", stats.Failed)
	return articles, nil
}
