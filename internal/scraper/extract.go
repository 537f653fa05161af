package scraper

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is what ExtractArticle reads from an article page.
type Page struct {
	Title     string
	Published string
	Text      string
}

var skipped = map[atom.Atom]bool{
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Aside:    true,
	atom.Figure:   true,
	atom.Noscript: true,
}

// ExtractArticle collects the text of every paragraph outside page chrome,
// plus the title and publish time from the document head.
func ExtractArticle(body []byte) (Page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}

	var (
		page       Page
		docTitle   string
		ogTitle    string
		paragraphs []string
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.Title:
				if docTitle == "" {
					docTitle = strings.TrimSpace(textOf(n))
				}
				return
			case atom.Meta:
				readMeta(n, &ogTitle, &page.Published)
				return
			case atom.Time:
				if page.Published == "" {
					page.Published = attr(n, "datetime")
				}
			case atom.P:
				if t := strings.TrimSpace(textOf(n)); t != "" {
					paragraphs = append(paragraphs, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Title = ogTitle
	if page.Title == "" {
		page.Title = docTitle
	}
	page.Text = collapseSpace(strings.Join(paragraphs, " "))
	return page, nil
}

func readMeta(n *html.Node, title, published *string) {
	key := attr(n, "property")
	if key == "" {
		key = attr(n, "name")
	}
	if key == "" {
		key = attr(n, "itemprop")
	}
	content := strings.TrimSpace(attr(n, "content"))
	if content == "" {
		return
	}
	switch key {
	case "og:title":
		*title = content
	case "article:published_time", "datePublished", "pubdate":
		if *published == "" {
			*published = content
		}
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var (
	urlPattern    = regexp.MustCompile(`https?\S+|www\S+`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	symbolPattern = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s.,!?;:\-'"\x{0900}-\x{097F}]`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// minLineWords drops navigation crumbs and captions that survive extraction.
const minLineWords = 4

// CleanText strips URLs, markup and symbols outside word characters,
// basic punctuation and Devanagari, drops short lines and collapses
// whitespace.
func CleanText(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = tagPattern.ReplaceAllString(text, "")
	text = symbolPattern.ReplaceAllString(text, " ")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if WordCount(line) >= minLineWords {
			kept = append(kept, line)
		}
	}
	return collapseSpace(strings.Join(kept, " "))
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
