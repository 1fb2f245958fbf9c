package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// MaxReplyIDs caps how many identifiers one scan recovers.
const MaxReplyIDs = 100

// ScanMarkup parses a rendered document and scans it for reply IDs.
func ScanMarkup(markup string, limit int) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	return ScanReplyIDs(doc, limit), nil
}

// ScanReplyIDs walks <time> elements in document order. Each timestamp that
// sits inside a link yields the link's trailing path segment as a post ID.
// Timestamps outside links and non-numeric segments are skipped, duplicates
// are dropped, and at most limit IDs are returned.
func ScanReplyIDs(doc *html.Node, limit int) []string {
	if limit <= 0 || limit > MaxReplyIDs {
		limit = MaxReplyIDs
	}

	ids := make([]string, 0)
	seen := make(map[string]bool)

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == TimestampTag {
			if id, ok := idFromHref(enclosingHref(n)); ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
				if len(ids) >= limit {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	return ids
}

// enclosingHref returns the href of the nearest <a> ancestor, or "".
func enclosingHref(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == LinkTag {
			for _, attr := range p.Attr {
				if attr.Key == "href" {
					return attr.Val
				}
			}
			return ""
		}
	}
	return ""
}

// idFromHref extracts the last path segment of a status link.
func idFromHref(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	path := strings.TrimRight(u.Path, "/")
	id := path[strings.LastIndex(path, "/")+1:]
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}
