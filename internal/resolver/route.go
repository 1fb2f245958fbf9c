package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibeckermayer/threadpress/internal/types"
)

// Route is how a conversation's replies are fetched
type Route int

const (
	// RouteRecent uses the conversation search, which only indexes the last
	// seven days.
	RouteRecent Route = iota
	// RouteStale renders the live page to recover reply IDs, then looks
	// them up in one batch.
	RouteStale
)

func (r Route) String() string {
	switch r {
	case RouteRecent:
		return "recent"
	case RouteStale:
		return "stale"
	default:
		return fmt.Sprintf("Route(%d)", int(r))
	}
}

// ChooseRoute picks the route for a conversation whose root was created at
// created. Roots younger than window are Recent.
func ChooseRoute(created, now time.Time, window time.Duration) Route {
	if now.Sub(created) < window {
		return RouteRecent
	}
	return RouteStale
}

// replies is what a route contributes to the thread
type replies struct {
	views   []types.PostView
	authors []types.Author
}

// fetchRecent returns the conversation search results in chronological order.
func (r *Resolver) fetchRecent(ctx context.Context, root types.Post) (*replies, error) {
	res, err := r.source.SearchConversation(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("search conversation %s: %w", root.ID, err)
	}
	if res.ResultCount == 0 {
		return &replies{views: []types.PostView{}}, nil
	}

	return &replies{
		views:   reversed(Assemble(&res.Payload)),
		authors: res.Authors,
	}, nil
}

// fetchStale recovers reply IDs from the rendered page and looks them up in
// the order they were found.
func (r *Resolver) fetchStale(ctx context.Context, root types.Post, handle string) (*replies, error) {
	pageURL := r.pageURL(handle, root.ID)

	ids := r.scraper.ScrapeReplyIDs(ctx, pageURL)
	if len(ids) > r.cfg.MaxReplies {
		ids = ids[:r.cfg.MaxReplies]
	}
	r.logger.Debug("recovered reply ids", slog.String("url", pageURL), slog.Int("count", len(ids)))
	if len(ids) == 0 {
		return &replies{views: []types.PostView{}}, nil
	}

	payload, err := r.source.FetchPosts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup %d replies: %w", len(ids), err)
	}

	return &replies{
		views:   Assemble(payload),
		authors: payload.Authors,
	}, nil
}

// pageURL is the canonical post page. X redirects /i/status/<id> to the
// author's page when the handle is unknown.
func (r *Resolver) pageURL(handle, id string) string {
	if handle == "" {
		handle = "i"
	}
	return fmt.Sprintf("%s/%s/status/%s", r.cfg.PageBaseURL, handle, id)
}
