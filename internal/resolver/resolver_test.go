package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadpress/internal/render"
	"github.com/ibeckermayer/threadpress/internal/types"
	"github.com/ibeckermayer/threadpress/internal/xapi"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type mockSource struct {
	mock.Mock
	credential bool
}

func (m *mockSource) HasCredential() bool { return m.credential }

func (m *mockSource) FetchPost(ctx context.Context, id string) (*xapi.Payload, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*xapi.Payload)
	return p, args.Error(1)
}

func (m *mockSource) FetchPosts(ctx context.Context, ids []string) (*xapi.Payload, error) {
	args := m.Called(ctx, ids)
	p, _ := args.Get(0).(*xapi.Payload)
	return p, args.Error(1)
}

func (m *mockSource) SearchConversation(ctx context.Context, conversationID string) (*xapi.SearchResult, error) {
	args := m.Called(ctx, conversationID)
	r, _ := args.Get(0).(*xapi.SearchResult)
	return r, args.Error(1)
}

type fakeScraper struct {
	ids   []string
	calls []string
}

func (f *fakeScraper) ScrapeReplyIDs(_ context.Context, pageURL string) []string {
	f.calls = append(f.calls, pageURL)
	return f.ids
}

func post(id, conv, author string, created time.Time) types.Post {
	return types.Post{
		ID:             id,
		ConversationID: conv,
		AuthorID:       author,
		Text:           "post " + id,
		CreatedAt:      created,
	}
}

var alice = types.Author{ID: "u1", Name: "Alice", Handle: "alice", AvatarURL: "https://pbs.twimg.com/a_normal.jpg"}
var bob = types.Author{ID: "u2", Name: "Bob", Handle: "bob"}

func single(p types.Post, authors ...types.Author) *xapi.Payload {
	return &xapi.Payload{Posts: []types.Post{p}, Authors: authors}
}

func newTestResolver(t *testing.T, source *mockSource, scraper *fakeScraper) *Resolver {
	t.Helper()
	r, err := render.New("UTC", "https://x.com")
	require.NoError(t, err)
	return New(Config{Now: func() time.Time { return now }}, source, scraper,
		r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ids(posts []types.PostView) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Post.ID)
	}
	return out
}

func TestResolveRecentReversesSearch(t *testing.T) {
	created := now.Add(-2 * time.Hour)
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", created), alice), nil)
	source.On("SearchConversation", mock.Anything, "100").Return(&xapi.SearchResult{
		Payload: xapi.Payload{
			Posts: []types.Post{
				post("103", "100", "u2", created.Add(3*time.Minute)),
				post("102", "100", "u1", created.Add(2*time.Minute)),
				post("101", "100", "u2", created.Add(time.Minute)),
			},
			Authors: []types.Author{bob},
		},
		ResultCount: 3,
	}, nil)

	scraper := &fakeScraper{}
	res, err := newTestResolver(t, source, scraper).ResolveThread(context.Background(), "https://x.com/alice/status/100")
	require.NoError(t, err)

	assert.Equal(t, RouteRecent, res.Route)
	assert.Equal(t, "100", res.Thread.RootID)
	assert.Equal(t, []string{"100", "101", "102", "103"}, ids(res.Thread.Posts))
	assert.Contains(t, res.Thread.Authors, "u2")
	assert.Empty(t, scraper.calls)
	source.AssertExpectations(t)
	source.AssertNotCalled(t, "FetchPosts", mock.Anything, mock.Anything)
}

func TestResolveRecentSearchIncludesRoot(t *testing.T) {
	created := now.Add(-time.Hour)
	root := post("100", "100", "u1", created)
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(root, alice), nil)
	source.On("SearchConversation", mock.Anything, "100").Return(&xapi.SearchResult{
		Payload: xapi.Payload{Posts: []types.Post{
			post("102", "100", "u1", created.Add(2*time.Minute)),
			post("101", "100", "u1", created.Add(time.Minute)),
			root,
		}},
		ResultCount: 3,
	}, nil)

	res, err := newTestResolver(t, source, &fakeScraper{}).ResolveThread(context.Background(), "https://x.com/alice/status/100")
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "101", "102"}, ids(res.Thread.Posts))
}

func TestResolveZeroSearchResults(t *testing.T) {
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", now.Add(-time.Minute)), alice), nil)
	source.On("SearchConversation", mock.Anything, "100").Return(&xapi.SearchResult{}, nil)

	res, err := newTestResolver(t, source, &fakeScraper{}).ResolveThread(context.Background(), "https://x.com/alice/status/100")
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, ids(res.Thread.Posts))
}

func TestResolveReplyRefetchesRoot(t *testing.T) {
	created := now.Add(-time.Hour)
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "205").Return(single(post("205", "100", "u2", created.Add(time.Minute)), bob), nil).Once()
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", created), alice), nil).Once()
	source.On("SearchConversation", mock.Anything, "100").Return(&xapi.SearchResult{
		Payload:     xapi.Payload{Posts: []types.Post{post("205", "100", "u2", created.Add(time.Minute))}},
		ResultCount: 1,
	}, nil)

	res, err := newTestResolver(t, source, &fakeScraper{}).ResolveThread(context.Background(), "https://twitter.com/bob/status/205")
	require.NoError(t, err)

	assert.Equal(t, "205", res.PostID)
	assert.Equal(t, "100", res.Thread.RootID)
	root, ok := res.Thread.Root()
	require.True(t, ok)
	assert.Equal(t, "100", root.Post.ID)
	assert.Equal(t, []string{"100", "205"}, ids(res.Thread.Posts))
	source.AssertExpectations(t)
}

func TestResolveStaleUsesScraper(t *testing.T) {
	created := now.Add(-30 * 24 * time.Hour)
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", created), alice), nil)
	source.On("FetchPosts", mock.Anything, []string{"100", "301", "302"}).Return(&xapi.Payload{
		Posts: []types.Post{
			post("100", "100", "u1", created),
			post("302", "100", "u2", created.Add(2*time.Hour)),
			post("301", "100", "u2", created.Add(time.Hour)),
		},
		Authors: []types.Author{alice, bob},
	}, nil)

	scraper := &fakeScraper{ids: []string{"100", "301", "302"}}
	res, err := newTestResolver(t, source, scraper).ResolveThread(context.Background(), "https://x.com/whoever/status/100")
	require.NoError(t, err)

	assert.Equal(t, RouteStale, res.Route)
	assert.Equal(t, []string{"https://x.com/alice/status/100"}, scraper.calls)
	// Batch order is kept as returned.
	assert.Equal(t, []string{"100", "302", "301"}, ids(res.Thread.Posts))
	source.AssertNotCalled(t, "SearchConversation", mock.Anything, mock.Anything)
}

func TestResolveStaleNothingRecovered(t *testing.T) {
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", now.AddDate(-1, 0, 0)), alice), nil)

	res, err := newTestResolver(t, source, &fakeScraper{ids: []string{}}).ResolveThread(context.Background(), "https://x.com/alice/status/100")
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, ids(res.Thread.Posts))
	source.AssertNotCalled(t, "FetchPosts", mock.Anything, mock.Anything)
}

func TestResolveDropsOtherConversations(t *testing.T) {
	created := now.Add(-time.Hour)
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", created), alice), nil)
	source.On("SearchConversation", mock.Anything, "100").Return(&xapi.SearchResult{
		Payload: xapi.Payload{Posts: []types.Post{
			post("900", "899", "u2", created.Add(2*time.Minute)),
			post("101", "100", "u2", created.Add(time.Minute)),
			post("101", "100", "u2", created.Add(time.Minute)),
		}},
		ResultCount: 3,
	}, nil)

	res, err := newTestResolver(t, source, &fakeScraper{}).ResolveThread(context.Background(), "https://x.com/alice/status/100")
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "101"}, ids(res.Thread.Posts))
	for _, p := range res.Thread.Posts {
		assert.Equal(t, res.Thread.RootID, p.Post.ConversationID)
	}
}

func TestResolveInvalidURL(t *testing.T) {
	source := &mockSource{credential: true}
	_, err := newTestResolver(t, source, &fakeScraper{}).Resolve(context.Background(), "https://example.com/post/1")
	assert.ErrorIs(t, err, ErrNoPostID)
	source.AssertNotCalled(t, "FetchPost", mock.Anything, mock.Anything)
}

func TestResolveMissingCredential(t *testing.T) {
	source := &mockSource{credential: false}
	_, err := newTestResolver(t, source, &fakeScraper{}).Resolve(context.Background(), "https://x.com/alice/status/100")
	assert.ErrorIs(t, err, xapi.ErrMissingCredential)
	source.AssertNotCalled(t, "FetchPost", mock.Anything, mock.Anything)
}

func TestResolveFetchErrorPropagates(t *testing.T) {
	httpErr := &xapi.HTTPError{Endpoint: xapi.EndpointPost, Status: 503, Body: "unavailable"}
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(nil, httpErr)

	_, err := newTestResolver(t, source, &fakeScraper{}).Resolve(context.Background(), "https://x.com/alice/status/100")
	var got *xapi.HTTPError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 503, got.Status)
}

func TestResolveRendersArticle(t *testing.T) {
	created := now.Add(-time.Hour)
	source := &mockSource{credential: true}
	source.On("FetchPost", mock.Anything, "100").Return(single(post("100", "100", "u1", created), alice), nil)
	source.On("SearchConversation", mock.Anything, "100").Return(&xapi.SearchResult{}, nil)

	article, err := newTestResolver(t, source, &fakeScraper{}).Resolve(context.Background(), "https://x.com/alice/status/100")
	require.NoError(t, err)

	assert.Equal(t, "Alice on X", article.Title)
	assert.Equal(t, "100", article.PostID)
	assert.Equal(t, "100", article.ConversationID)
	assert.Equal(t, "alice", article.AuthorHandle)
	assert.Equal(t, 1, article.PostCount)
	assert.Equal(t, "recent", article.Route)
	assert.Equal(t, created, article.RootCreatedAt)
	assert.Equal(t, now, article.ResolvedAt)
	assert.Contains(t, article.Content, "post 100")
	assert.Contains(t, article.Content, `og:title" content="Alice on X"`)
}

func TestChooseRoute(t *testing.T) {
	window := 7 * 24 * time.Hour
	assert.Equal(t, RouteRecent, ChooseRoute(now.Add(-time.Hour), now, window))
	assert.Equal(t, RouteRecent, ChooseRoute(now.Add(-window+time.Second), now, window))
	assert.Equal(t, RouteStale, ChooseRoute(now.Add(-window), now, window))
	assert.Equal(t, RouteStale, ChooseRoute(now.AddDate(-2, 0, 0), now, window))
	assert.Equal(t, "recent", RouteRecent.String())
	assert.Equal(t, "stale", RouteStale.String())
}

func TestAssembleJoinsMedia(t *testing.T) {
	p := &xapi.Payload{
		Posts: []types.Post{
			{ID: "1", MediaKeys: []string{"m2", "missing", "m1"}},
			{ID: "2"},
		},
		Media: []types.Media{
			{Key: "m1", Kind: types.MediaPhoto, URL: "https://img/1.jpg"},
			{Key: "m2", Kind: types.MediaVideo, PreviewURL: "https://img/2.jpg"},
		},
	}

	views := Assemble(p)
	require.Len(t, views, 2)
	require.Len(t, views[0].Media, 2)
	assert.Equal(t, "m2", views[0].Media[0].Key)
	assert.Equal(t, "m1", views[0].Media[1].Key)
	assert.Empty(t, views[1].Media)

	assert.Empty(t, Assemble(nil))
}
