package render

import (
	"testing"

	"github.com/ibeckermayer/threadpress/internal/types"
)

func TestLinkify(t *testing.T) {
	short := types.URLEntity{URL: "https://t.co/a", ExpandedURL: "https://example.com/a", DisplayURL: "example.com/a"}
	anchorA := `<a href="https://example.com/a">example.com/a</a>`

	tests := []struct {
		name     string
		text     string
		entities []types.URLEntity
		want     string
	}{
		{
			name: "no entities",
			text: "plain https://t.co/a",
			want: "plain https://t.co/a",
		},
		{
			name:     "single entity",
			text:     "read https://t.co/a now",
			entities: []types.URLEntity{short},
			want:     "read " + anchorA + " now",
		},
		{
			name:     "one entity consumes one occurrence",
			text:     "https://t.co/a and https://t.co/a",
			entities: []types.URLEntity{short},
			want:     anchorA + " and https://t.co/a",
		},
		{
			name:     "two entities for a repeated url",
			text:     "https://t.co/a and https://t.co/a",
			entities: []types.URLEntity{short, {Start: 19, URL: "https://t.co/a", ExpandedURL: "https://example.com/a", DisplayURL: "example.com/a"}},
			want:     anchorA + " and " + anchorA,
		},
		{
			name: "entities sorted by position",
			text: "https://t.co/b then https://t.co/a",
			entities: []types.URLEntity{
				{Start: 20, URL: "https://t.co/a", ExpandedURL: "https://example.com/a", DisplayURL: "example.com/a"},
				{Start: 0, URL: "https://t.co/b", ExpandedURL: "https://example.com/b", DisplayURL: "example.com/b"},
			},
			want: `<a href="https://example.com/b">example.com/b</a> then ` + anchorA,
		},
		{
			name:     "untracked url left verbatim",
			text:     "https://t.co/a https://other.example/x",
			entities: []types.URLEntity{short},
			want:     anchorA + " https://other.example/x",
		},
		{
			name: "untracked url sharing a prefix is not rewritten",
			text: "see https://example.com/abcd and https://example.com/abc",
			entities: []types.URLEntity{
				{Start: 33, URL: "https://example.com/abc", ExpandedURL: "https://e.org/", DisplayURL: "e.org"},
			},
			want: `see https://example.com/abcd and <a href="https://e.org/">e.org</a>`,
		},
		{
			name: "misaligned offset falls back to a whole match",
			text: "see https://example.com/abcd and https://example.com/abc.",
			entities: []types.URLEntity{
				{Start: 0, URL: "https://example.com/abc", ExpandedURL: "https://e.org/", DisplayURL: "e.org"},
			},
			want: `see https://example.com/abcd and <a href="https://e.org/">e.org</a>.`,
		},
		{
			name: "offset counts code points",
			text: "héllo https://t.co/a",
			entities: []types.URLEntity{
				{Start: 6, URL: "https://t.co/a", ExpandedURL: "https://example.com/a", DisplayURL: "example.com/a"},
			},
			want: "héllo " + anchorA,
		},
		{
			name:     "entity not present in text",
			text:     "nothing here",
			entities: []types.URLEntity{short},
			want:     "nothing here",
		},
		{
			name:     "surrounding text escaped",
			text:     "<i>x</i> https://t.co/a",
			entities: []types.URLEntity{short},
			want:     "&lt;i&gt;x&lt;/i&gt; " + anchorA,
		},
		{
			name:     "non-http expansion is not linked",
			text:     "see https://t.co/a",
			entities: []types.URLEntity{{URL: "https://t.co/a", ExpandedURL: "javascript:alert(1)", DisplayURL: "click"}},
			want:     "see click",
		},
		{
			name:     "missing display text falls back to expansion",
			text:     "https://t.co/a",
			entities: []types.URLEntity{{URL: "https://t.co/a", ExpandedURL: "https://example.com/a"}},
			want:     `<a href="https://example.com/a">https://example.com/a</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(linkify(tt.text, tt.entities))
			if got != tt.want {
				t.Fatalf("linkify(%q)\n got: %s\nwant: %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestLargeAvatar(t *testing.T) {
	got := largeAvatar("https://pbs.twimg.com/profile_images/1/abc_normal.png")
	if got != "https://pbs.twimg.com/profile_images/1/abc_400x400.png" {
		t.Fatalf("largeAvatar = %s", got)
	}
	if largeAvatar("") != "" {
		t.Fatal("expected empty avatar to stay empty")
	}
}
