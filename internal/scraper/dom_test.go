package scraper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrapped(id string) string {
	return fmt.Sprintf(`<article><a href="/someone/status/%s"><time datetime="2024-01-01T00:00:00Z">1h</time></a></article>`, id)
}

func bare() string {
	return `<article><span><time datetime="2024-01-01T00:00:00Z">2h</time></span></article>`
}

func TestScanMarkupOnlyLinkedTimestamps(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(wrapped("101"))
	b.WriteString(bare())
	b.WriteString(wrapped("102"))
	b.WriteString(bare())
	b.WriteString(wrapped("103"))
	b.WriteString("</body></html>")

	ids, err := ScanMarkup(b.String(), MaxReplyIDs)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102", "103"}, ids)
}

func TestScanMarkupNestedLink(t *testing.T) {
	markup := `<div><a href="https://x.com/bob/status/555"><div><span><time>now</time></span></div></a></div>`

	ids, err := ScanMarkup(markup, MaxReplyIDs)
	require.NoError(t, err)
	assert.Equal(t, []string{"555"}, ids)
}

func TestScanMarkupSkipsNonNumericAndDuplicates(t *testing.T) {
	markup := `
		<a href="/bob/status/10"><time>a</time></a>
		<a href="/bob/analytics"><time>b</time></a>
		<a href="/bob/status/10/"><time>c</time></a>
		<a><time>d</time></a>
		<a href="/carol/status/11?s=20"><time>e</time></a>`

	ids, err := ScanMarkup(markup, MaxReplyIDs)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, ids)
}

func TestScanMarkupCap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 150; i++ {
		b.WriteString(wrapped(fmt.Sprintf("%d", 1000+i)))
	}

	ids, err := ScanMarkup(b.String(), MaxReplyIDs)
	require.NoError(t, err)
	require.Len(t, ids, MaxReplyIDs)
	assert.Equal(t, "1000", ids[0])
	assert.Equal(t, "1099", ids[MaxReplyIDs-1])

	ids, err = ScanMarkup(b.String(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"1000", "1001", "1002", "1003", "1004"}, ids)

	// Limits above the hard cap are clamped.
	ids, err = ScanMarkup(b.String(), 500)
	require.NoError(t, err)
	assert.Len(t, ids, MaxReplyIDs)
}

func TestScanMarkupEmpty(t *testing.T) {
	ids, err := ScanMarkup("", MaxReplyIDs)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestIDFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/a/status/123", "123", true},
		{"https://x.com/a/status/123", "123", true},
		{"/a/status/123/", "123", true},
		{"/a/status/123/photo/1", "1", true},
		{"/a/status/abc", "", false},
		{"", "", false},
		{"/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := idFromHref(tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
