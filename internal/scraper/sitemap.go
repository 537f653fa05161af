package scraper

import (
	"fmt"
	"strings"
)

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	URLs []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

// Sitemap is either an index of child sitemaps or a set of page URLs.
type Sitemap struct {
	Children []string
	URLs     []string
}

func ParseSitemap(data []byte) (Sitemap, error) {
	root, err := rootName(data)
	if err != nil {
		return Sitemap{}, err
	}

	var sm Sitemap
	switch root {
	case "sitemapindex":
		var doc sitemapIndex
		if err := newDecoder(data).Decode(&doc); err != nil {
			return Sitemap{}, fmt.Errorf("parse sitemap index: %w", err)
		}
		for _, s := range doc.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				sm.Children = append(sm.Children, loc)
			}
		}
	case "urlset":
		var doc urlSet
		if err := newDecoder(data).Decode(&doc); err != nil {
			return Sitemap{}, fmt.Errorf("parse urlset: %w", err)
		}
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				sm.URLs = append(sm.URLs, loc)
			}
		}
	default:
		return Sitemap{}, fmt.Errorf("%w: root element %q", ErrUnknownFormat, root)
	}
	return sm, nil
}
