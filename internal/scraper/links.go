package scraper

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"khabar/internal/news"
)

// FilterCandidateURLs keeps absolute http(s) links on host (ignoring a
// leading "www."), strips fragments, drops links matching any exclusion
// pattern or already in seen, and removes duplicates. Order is preserved.
// An empty host accepts any host; seen may be nil.
func FilterCandidateURLs(host string, links []string, exclusions []string, seen news.URLSet) []string {
	patterns := make([]*regexp.Regexp, 0, len(exclusions))
	for _, ex := range exclusions {
		re, err := regexp.Compile(ex)
		if err != nil {
			slog.Warn("ignoring invalid exclusion pattern", "pattern", ex, "error", err)
			continue
		}
		patterns = append(patterns, re)
	}

	host = bareHost(host)
	var out []string
	batch := make(map[string]bool)

	for _, link := range links {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if host != "" && bareHost(u.Host) != host {
			continue
		}

		u.Fragment = ""
		normalized := u.String()

		excluded := false
		for _, re := range patterns {
			if re.MatchString(normalized) {
				excluded = true
				break
			}
		}
		if excluded || batch[normalized] || seen.Has(normalized) {
			continue
		}
		batch[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func bareHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}

// HostOf returns the host of raw without a leading "www.", or "" when raw
// is not a URL.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return bareHost(u.Host)
}
