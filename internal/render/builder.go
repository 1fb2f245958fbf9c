package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ibeckermayer/threadpress/internal/types"
)

// TimestampLayout is the attribution timestamp format.
const TimestampLayout = "January 2, 2006 at 3:04 PM MST"

// Renderer builds HTML articles from resolved threads
type Renderer struct {
	template    *template.Template
	location    *time.Location
	pageBaseURL string
}

// New creates a new renderer. Timestamps are shown in the given IANA zone.
func New(timezone, pageBaseURL string) (*Renderer, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	tmpl, err := template.New("thread").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Renderer{
		template:    tmpl,
		location:    loc,
		pageBaseURL: strings.TrimRight(pageBaseURL, "/"),
	}, nil
}

// Document is a rendered thread ready for the content pipeline
type Document struct {
	Title       string
	Description string
	Image       string
	HTML        string
}

// documentData is the template data structure
type documentData struct {
	Title       string
	Description string
	Image       string
	Posts       []postData
	Attribution attributionData
}

type postData struct {
	Byline string
	Body   template.HTML
	Media  []mediaData
}

type mediaData struct {
	Photo      bool
	URL        string
	PreviewURL string
	LinkURL    string
}

type attributionData struct {
	Handle     string
	Name       string
	ProfileURL string
	URL        string
	Timestamp  string
}

// Render produces the article for a thread. originalURL is the link the
// caller resolved and is used for the attribution and non-photo media.
func (r *Renderer) Render(thread *types.Thread, originalURL string) (*Document, error) {
	root, ok := thread.Root()
	if !ok {
		return nil, fmt.Errorf("thread %s has no posts", thread.RootID)
	}

	author, hasAuthor := thread.Author(root.Post.AuthorID)

	data := documentData{
		Title:       Title(author, hasAuthor),
		Description: plainText(root.Post.Text),
		Image:       largeAvatar(author.AvatarURL),
		Posts:       make([]postData, 0, len(thread.Posts)),
		Attribution: attributionData{
			URL:       originalURL,
			Timestamp: root.Post.CreatedAt.In(r.location).Format(TimestampLayout),
		},
	}
	if hasAuthor {
		data.Attribution.Handle = author.Handle
		data.Attribution.Name = author.Name
		data.Attribution.ProfileURL = r.pageBaseURL + "/" + author.Handle
	}

	for _, pv := range thread.Posts {
		pd := postData{
			Body:  linkify(pv.Post.Text, pv.Post.URLs),
			Media: make([]mediaData, 0, len(pv.Media)),
		}
		// Replies from other people get a byline; the root author is
		// credited once in the attribution line.
		if pv.Post.AuthorID != root.Post.AuthorID {
			if a, ok := thread.Author(pv.Post.AuthorID); ok {
				pd.Byline = a.Handle
			}
		}
		for _, m := range pv.Media {
			md := mediaData{
				Photo:      m.IsPhoto(),
				URL:        m.URL,
				PreviewURL: m.PreviewURL,
				LinkURL:    originalURL,
			}
			if !md.Photo && md.PreviewURL == "" {
				continue
			}
			if md.Photo && md.URL == "" {
				continue
			}
			pd.Media = append(pd.Media, md)
		}
		data.Posts = append(data.Posts, pd)
	}

	var htmlBuf bytes.Buffer
	if err := r.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Document{
		Title:       data.Title,
		Description: data.Description,
		Image:       data.Image,
		HTML:        htmlBuf.String(),
	}, nil
}

// Title is the article title for a thread started by author.
func Title(author types.Author, known bool) string {
	if !known || author.Name == "" {
		return "Thread on X"
	}
	return author.Name + " on X"
}

// largeAvatar swaps the API's 48px avatar for the 400px variant.
func largeAvatar(u string) string {
	return strings.Replace(u, "_normal.", "_400x400.", 1)
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <meta property="og:image" content="{{.Image}}">
    <meta property="og:image:secure_url" content="{{.Image}}">
    <meta property="og:title" content="{{.Title}}">
    <meta property="og:description" content="{{.Description}}">
</head>
<body>
    <div class="thread">
        {{range .Posts}}
        <p class="thread-post">{{with .Byline}}<span class="post-author">@{{.}}</span> {{end}}{{.Body}}</p>
        {{range .Media}}{{if .Photo}}<img class="thread-media" src="{{.URL}}">{{else}}<a class="media-link" href="{{.LinkURL}}"><img class="thread-media" src="{{.PreviewURL}}"></a>{{end}}
        {{end}}{{end}}
        <p class="attribution">&mdash; {{if .Attribution.Handle}}<a href="{{.Attribution.ProfileURL}}">@{{.Attribution.Handle}}</a> {{.Attribution.Name}} {{end}}<a href="{{.Attribution.URL}}">{{.Attribution.Timestamp}}</a></p>
    </div>
</body>
</html>`
