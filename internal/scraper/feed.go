package scraper

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

// FeedEntry is one item of an RSS or Atom feed.
type FeedEntry struct {
	Title     string
	Link      string
	Published string
}

type rssDoc struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			GUID    string `xml:"guid"`
			PubDate string `xml:"pubDate"`
			Date    string `xml:"http://purl.org/dc/elements/1.1/ date"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDoc struct {
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

func newDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	d.Strict = false
	return d
}

func rootName(data []byte) (string, error) {
	d := newDecoder(data)
	for {
		tok, err := d.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnknownFormat, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return strings.ToLower(se.Name.Local), nil
		}
	}
}

// ParseFeed reads RSS 2.0 and Atom documents. Entries without a link are
// dropped.
func ParseFeed(data []byte) ([]FeedEntry, error) {
	root, err := rootName(data)
	if err != nil {
		return nil, err
	}

	var entries []FeedEntry
	switch root {
	case "rss":
		var doc rssDoc
		if err := newDecoder(data).Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse rss: %w", err)
		}
		for _, it := range doc.Channel.Items {
			link := strings.TrimSpace(it.Link)
			if link == "" && strings.HasPrefix(it.GUID, "http") {
				link = strings.TrimSpace(it.GUID)
			}
			published := it.PubDate
			if published == "" {
				published = it.Date
			}
			entries = append(entries, FeedEntry{
				Title:     strings.TrimSpace(it.Title),
				Link:      link,
				Published: strings.TrimSpace(published),
			})
		}
	case "feed":
		var doc atomDoc
		if err := newDecoder(data).Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse atom: %w", err)
		}
		for _, e := range doc.Entries {
			var link string
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = strings.TrimSpace(l.Href)
					break
				}
			}
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			entries = append(entries, FeedEntry{
				Title:     strings.TrimSpace(e.Title),
				Link:      link,
				Published: strings.TrimSpace(published),
			})
		}
	default:
		return nil, fmt.Errorf("%w: root element %q", ErrUnknownFormat, root)
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Link != "" {
			out = append(out, e)
		}
	}
	return out, nil
}
