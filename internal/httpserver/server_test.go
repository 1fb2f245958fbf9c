package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadpress/internal/app"
	"github.com/ibeckermayer/threadpress/internal/resolver"
	"github.com/ibeckermayer/threadpress/internal/store"
	"github.com/ibeckermayer/threadpress/internal/types"
	"github.com/ibeckermayer/threadpress/internal/xapi"
)

type fakeService struct {
	resolveErr error
	articles   map[string]*types.Article
	listErr    error
}

func (f *fakeService) Resolve(_ context.Context, rawURL string) (*types.Article, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &types.Article{
		PostID:         "205",
		ConversationID: "100",
		URL:            rawURL,
		Title:          "Alice on X",
		Content:        "<html>thread</html>",
		PostCount:      3,
		Route:          "recent",
	}, nil
}

func (f *fakeService) Article(_ context.Context, id string) (*types.Article, error) {
	if a, ok := f.articles[id]; ok {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeService) ListArticles(_ context.Context, limit int) ([]store.ArticleSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]store.ArticleSummary, 0)
	for _, a := range f.articles {
		out = append(out, store.ArticleSummary{ConversationID: a.ConversationID, Title: a.Title})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func serve(t *testing.T, svc Service, target string) *httptest.ResponseRecorder {
	t.Helper()
	s := NewServer(":0", svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, &fakeService{}, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestResolve(t *testing.T) {
	postURL := "https://x.com/alice/status/205"
	rec := serve(t, &fakeService{}, "/resolve?url="+url.QueryEscape(postURL))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body resolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, resolveResponse{
		Title:          "Alice on X",
		URL:            postURL,
		Content:        "<html>thread</html>",
		PostID:         "205",
		ConversationID: "100",
		PostCount:      3,
		Route:          "recent",
	}, body)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad url", fmt.Errorf("%w: %q", resolver.ErrNoPostID, "x"), http.StatusBadRequest},
		{"no credential", xapi.ErrMissingCredential, http.StatusServiceUnavailable},
		{"not found", fmt.Errorf("fetch post 1: %w", xapi.ErrPostNotFound), http.StatusNotFound},
		{"upstream", fmt.Errorf("fetch post 1: %w", &xapi.HTTPError{Endpoint: xapi.EndpointPost, Status: 429}), http.StatusBadGateway},
		{"transport", errors.New("connection reset"), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeService{resolveErr: tt.err}, "/resolve?url=https://x.com/a/status/1")
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestResolveUpstreamDetailNotExposed(t *testing.T) {
	upstream := &xapi.HTTPError{
		Endpoint: xapi.EndpointPost,
		Status:   500,
		Body:     `{"internal":"stack trace from api"}`,
	}
	rec := serve(t, &fakeService{resolveErr: fmt.Errorf("fetch post 1: %w", upstream)},
		"/resolve?url=https://x.com/a/status/1")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UpstreamError", body["error"])
	assert.Equal(t, "upstream request failed", body["message"])
	assert.NotContains(t, rec.Body.String(), "stack trace")
}

func TestResolveMissingURL(t *testing.T) {
	rec := serve(t, &fakeService{}, "/resolve")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArticle(t *testing.T) {
	svc := &fakeService{articles: map[string]*types.Article{
		"100": {ConversationID: "100", Title: "Alice on X", Content: "<html>archived</html>"},
	}}

	rec := serve(t, svc, "/articles/100")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<html>archived</html>", rec.Body.String())

	rec = serve(t, svc, "/articles/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, svc, "/articles/not-an-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListArticles(t *testing.T) {
	svc := &fakeService{articles: map[string]*types.Article{
		"100": {ConversationID: "100", Title: "Alice on X"},
	}}

	rec := serve(t, svc, "/articles?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Articles []store.ArticleSummary `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Articles, 1)
	assert.Equal(t, "100", body.Articles[0].ConversationID)

	rec = serve(t, svc, "/articles?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &fakeService{listErr: app.ErrArchiveDisabled}, "/articles")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", &fakeService{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
