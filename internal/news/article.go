// Package news holds the article and chunk types shared by ingestion,
// storage and retrieval.
package news

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

var ErrInvalidArticle = errors.New("invalid article")

// DateLayout is the ISO-8601 calendar day used for every stored date.
const DateLayout = "2006-01-02"

// Article is one extracted news item. URL is its natural identifier.
type Article struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Date   string `json:"date"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Validate checks an article at the ingestion boundary, fills the title
// from the URL slug when the extractor found none and rewrites a
// parseable date to DateLayout.
func (a *Article) Validate() error {
	a.URL = strings.TrimSpace(a.URL)
	u, err := url.Parse(a.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url %q is not an absolute http(s) url", ErrInvalidArticle, a.URL)
	}
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("%w: %s has no text", ErrInvalidArticle, a.URL)
	}
	if strings.TrimSpace(a.Source) == "" {
		a.Source = u.Host
	}
	if strings.TrimSpace(a.Title) == "" {
		a.Title = TitleFromURL(a.URL)
	}
	if d, ok := NormalizeDate(a.Date); ok {
		a.Date = d
	}
	return nil
}

// TitleFromURL turns the last path segment into a readable title.
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	slug := path.Base(strings.TrimSuffix(u.Path, "/"))
	if slug == "." || slug == "/" || slug == "" {
		return u.Host
	}
	slug = strings.TrimSuffix(slug, path.Ext(slug))
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	if len(words) == 0 {
		return u.Host
	}
	return strings.Join(words, " ")
}

// Chunk is an immutable passage of an article, addressed by ChunkID in
// both the metadata store and the vector index.
type Chunk struct {
	ChunkID    uint64 `json:"chunk_id"`
	Text       string `json:"text"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Date       string `json:"date"`
	Source     string `json:"source"`
	ChunkIndex uint32 `json:"chunk_index"`
	TokenCount uint32 `json:"token_count"`
}

// URLSet is the set of article URLs already present in the store.
type URLSet map[string]struct{}

func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s[u] = struct{}{}
	}
	return s
}

func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

func (s URLSet) Add(u string) {
	s[u] = struct{}{}
}

// DateResult reports whether a date string could be parsed. Callers decide
// what an unparsed date means for them instead of relying on a sentinel.
type DateResult struct {
	Time   time.Time
	Parsed bool
}

// ParseDate accepts the stored day layout plus the timestamp formats that
// feeds and page metadata use in practice.
func ParseDate(s string) DateResult {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateResult{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateResult{Time: t, Parsed: true}
		}
	}
	return DateResult{}
}

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeDate formats any accepted date as the stored day layout. The
// second return value is false when the input could not be parsed.
func NormalizeDate(s string) (string, bool) {
	r := ParseDate(s)
	if !r.Parsed {
		return s, false
	}
	return r.Time.UTC().Format(DateLayout), true
}
