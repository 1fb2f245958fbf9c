// Package resolver turns a post URL into a rendered article containing the
// whole conversation.
//
// A resolution is strictly sequential: extract the post ID, fetch the post,
// hop to the conversation root when the post is a reply, pick a Route from
// the root's age, fetch the replies, then render. Nothing is shared between
// resolutions.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ibeckermayer/threadpress/internal/render"
	"github.com/ibeckermayer/threadpress/internal/types"
	"github.com/ibeckermayer/threadpress/internal/xapi"
)

// ErrNoPostID is returned when a URL is not a recognised post link.
var ErrNoPostID = errors.New("no post id in url")

// PostSource fetches posts. *xapi.Client implements it.
type PostSource interface {
	HasCredential() bool
	FetchPost(ctx context.Context, id string) (*xapi.Payload, error)
	FetchPosts(ctx context.Context, ids []string) (*xapi.Payload, error)
	SearchConversation(ctx context.Context, conversationID string) (*xapi.SearchResult, error)
}

// ReplyScraper recovers reply IDs from a rendered post page.
// *scraper.Fallback implements it.
type ReplyScraper interface {
	ScrapeReplyIDs(ctx context.Context, pageURL string) []string
}

// Config holds resolver settings
type Config struct {
	// RecentWindow is how far back the conversation search reaches.
	RecentWindow time.Duration
	// MaxReplies caps the IDs handed to the batch lookup.
	MaxReplies int
	// PageBaseURL is the site the fallback renders, e.g. https://x.com.
	PageBaseURL string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (cfg *Config) defaults() {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 7 * 24 * time.Hour
	}
	if cfg.MaxReplies <= 0 || cfg.MaxReplies > xapi.MaxBatchIDs {
		cfg.MaxReplies = xapi.MaxBatchIDs
	}
	if cfg.PageBaseURL == "" {
		cfg.PageBaseURL = "https://x.com"
	}
	cfg.PageBaseURL = strings.TrimRight(cfg.PageBaseURL, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// Resolver resolves post URLs into articles
type Resolver struct {
	cfg      Config
	source   PostSource
	scraper  ReplyScraper
	renderer *render.Renderer
	logger   *slog.Logger
}

// New creates a resolver.
func New(cfg Config, source PostSource, scraper ReplyScraper, renderer *render.Renderer, logger *slog.Logger) *Resolver {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:      cfg,
		source:   source,
		scraper:  scraper,
		renderer: renderer,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// Resolution is a resolved thread before rendering
type Resolution struct {
	PostID string
	Route  Route
	Thread *types.Thread
}

// Resolve resolves rawURL and renders the thread.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*types.Article, error) {
	res, err := r.ResolveThread(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return r.Render(res, rawURL)
}

// Render turns a resolution into an article.
func (r *Resolver) Render(res *Resolution, rawURL string) (*types.Article, error) {
	doc, err := r.renderer.Render(res.Thread, rawURL)
	if err != nil {
		return nil, fmt.Errorf("render thread %s: %w", res.Thread.RootID, err)
	}

	root, _ := res.Thread.Root()
	article := &types.Article{
		PostID:         res.PostID,
		ConversationID: res.Thread.RootID,
		URL:            rawURL,
		Title:          doc.Title,
		Description:    doc.Description,
		Content:        doc.HTML,
		PostCount:      len(res.Thread.Posts),
		Route:          res.Route.String(),
		RootCreatedAt:  root.Post.CreatedAt,
		ResolvedAt:     r.cfg.Now().UTC(),
	}
	if a, ok := res.Thread.Author(root.Post.AuthorID); ok {
		article.AuthorHandle = a.Handle
	}
	return article, nil
}

// ResolveThread fetches the full conversation behind rawURL. The returned
// thread always starts with the conversation root, and every post in it
// belongs to that conversation.
func (r *Resolver) ResolveThread(ctx context.Context, rawURL string) (*Resolution, error) {
	id, ok := xapi.ExtractPostID(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoPostID, rawURL)
	}
	if !r.source.HasCredential() {
		return nil, xapi.ErrMissingCredential
	}

	start := time.Now()
	logger := r.logger.With(slog.String("post_id", id))

	authors := make(map[string]types.Author)
	root, err := r.fetchRoot(ctx, id, authors)
	if err != nil {
		return nil, err
	}

	route := ChooseRoute(root.Post.CreatedAt, r.cfg.Now(), r.cfg.RecentWindow)
	logger.Info("resolving thread",
		slog.String("conversation_id", root.Post.ID),
		slog.String("route", route.String()))

	var rep *replies
	switch route {
	case RouteRecent:
		rep, err = r.fetchRecent(ctx, root.Post)
	case RouteStale:
		handle := ""
		if a, ok := authors[root.Post.AuthorID]; ok {
			handle = a.Handle
		} else if h, ok := xapi.ExtractHandle(rawURL); ok && id == root.Post.ID {
			handle = h
		}
		rep, err = r.fetchStale(ctx, root.Post, handle)
	}
	if err != nil {
		return nil, err
	}
	indexAuthors(authors, rep.authors)

	thread := &types.Thread{
		RootID:  root.Post.ID,
		Posts:   conversation(root, rep.views),
		Authors: authors,
	}

	logger.Info("thread resolved",
		slog.String("route", route.String()),
		slog.Int("posts", len(thread.Posts)),
		slog.Duration("elapsed", time.Since(start)))

	return &Resolution{PostID: id, Route: route, Thread: thread}, nil
}

// fetchRoot fetches the post and, when it is a reply, its conversation root.
func (r *Resolver) fetchRoot(ctx context.Context, id string, authors map[string]types.Author) (types.PostView, error) {
	view, err := r.fetchOne(ctx, id, authors)
	if err != nil {
		return types.PostView{}, err
	}
	if view.Post.IsConversationRoot() {
		return view, nil
	}

	r.logger.Debug("post is a reply, fetching conversation root",
		slog.String("post_id", id),
		slog.String("conversation_id", view.Post.ConversationID))
	return r.fetchOne(ctx, view.Post.ConversationID, authors)
}

func (r *Resolver) fetchOne(ctx context.Context, id string, authors map[string]types.Author) (types.PostView, error) {
	payload, err := r.source.FetchPost(ctx, id)
	if err != nil {
		return types.PostView{}, fmt.Errorf("fetch post %s: %w", id, err)
	}
	views := Assemble(payload)
	if len(views) == 0 {
		return types.PostView{}, fmt.Errorf("fetch post %s: %w", id, xapi.ErrPostNotFound)
	}
	indexAuthors(authors, payload.Authors)
	return views[0], nil
}

// conversation puts the root first and keeps the other posts of the same
// conversation in the order the route produced them, without duplicates.
func conversation(root types.PostView, views []types.PostView) []types.PostView {
	posts := make([]types.PostView, 0, len(views)+1)
	posts = append(posts, root)

	seen := map[string]bool{root.Post.ID: true}
	for _, v := range views {
		if seen[v.Post.ID] || v.Post.ConversationID != root.Post.ID {
			continue
		}
		seen[v.Post.ID] = true
		posts = append(posts, v)
	}
	return posts
}
