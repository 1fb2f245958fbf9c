package render

import (
	"html"
	"html/template"
	"net/url"
	"sort"
	"strings"

	"github.com/ibeckermayer/threadpress/internal/types"
)

// plainText undoes the entity encoding the API applies to post text
// (&amp;, &lt;, &gt;) so the template escapes it exactly once.
func plainText(s string) string {
	return html.UnescapeString(s)
}

// linkify escapes post text and replaces each tracked URL occurrence with an
// anchor to its expanded form. Entities are matched left to right, each
// consuming one occurrence; URLs without an entity stay as text.
func linkify(text string, entities []types.URLEntity) template.HTML {
	text = plainText(text)

	ents := make([]types.URLEntity, len(entities))
	copy(ents, entities)
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Start < ents[j].Start })

	var b strings.Builder
	cursor := 0
	for _, e := range ents {
		if e.URL == "" {
			continue
		}
		idx := locate(text, cursor, e)
		if idx < 0 {
			continue
		}
		b.WriteString(html.EscapeString(text[cursor:idx]))
		b.WriteString(anchor(e))
		cursor = idx + len(e.URL)
	}
	b.WriteString(html.EscapeString(text[cursor:]))

	return template.HTML(b.String())
}

// locate returns the byte offset of e.URL in text at or after cursor, or -1.
// The entity's Start (counted in code points) is tried first; when it does
// not line up the first whole occurrence after cursor is used.
func locate(text string, cursor int, e types.URLEntity) int {
	if off, ok := byteOffset(text, e.Start); ok && off >= cursor && wholeMatch(text, off, e.URL) {
		return off
	}
	for from := cursor; from < len(text); {
		i := strings.Index(text[from:], e.URL)
		if i < 0 {
			return -1
		}
		if wholeMatch(text, from+i, e.URL) {
			return from + i
		}
		from += i + 1
	}
	return -1
}

// byteOffset converts a code point offset into a byte offset within s.
func byteOffset(s string, runes int) (int, bool) {
	if runes < 0 {
		return 0, false
	}
	n := 0
	for i := range s {
		if n == runes {
			return i, true
		}
		n++
	}
	if n == runes {
		return len(s), true
	}
	return 0, false
}

// wholeMatch reports whether link sits at off and is not the prefix of a
// longer URL.
func wholeMatch(text string, off int, link string) bool {
	if !strings.HasPrefix(text[off:], link) {
		return false
	}
	end := off + len(link)
	return end == len(text) || !isURLChar(text[end])
}

// isURLChar leaves out trailing punctuation that usually ends a sentence.
func isURLChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("/-_~%=&#+@", c) >= 0
}

func anchor(e types.URLEntity) string {
	href := e.ExpandedURL
	if href == "" {
		href = e.URL
	}
	display := e.DisplayURL
	if display == "" {
		display = href
	}
	if !safeLink(href) {
		return html.EscapeString(display)
	}
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(display) + `</a>`
}

func safeLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
