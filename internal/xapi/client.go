// Package xapi fetches posts from the X v2 REST API.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.x.com"

	// MaxBatchIDs is the most IDs one lookup accepts.
	MaxBatchIDs = 100

	// MaxSearchResults is the largest page the search endpoint returns.
	MaxSearchResults = 100
)

// Endpoint names, used in errors and logs
const (
	EndpointPost   = "PostByID"
	EndpointPosts  = "PostsByIDs"
	EndpointSearch = "SearchRecent"
)

// ClientConfig holds configuration for the API client.
type ClientConfig struct {
	// BearerToken authenticates every request. Required.
	BearerToken string

	// BaseURL overrides DefaultBaseURL (tests point it at httptest).
	BaseURL string

	// Transport performs the requests. Default: HTTPTransport with Timeout.
	Transport Transport

	// Timeout applies to the default transport only.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	Logger *slog.Logger
}

// defaults fills in zero-value config fields with sensible defaults.
func (cfg *ClientConfig) defaults() {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = NewHTTPTransport(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// Client fetches posts, post batches and conversation searches.
type Client struct {
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client. A missing token is not an error here; every
// fetch checks it before touching the network.
func NewClient(cfg ClientConfig) *Client {
	cfg.defaults()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  cfg.Logger.With(slog.String("component", "xapi")),
	}
}

// HasCredential reports whether a bearer token is configured.
func (c *Client) HasCredential() bool {
	return c.cfg.BearerToken != ""
}

// FetchPost returns one post with its author and media.
func (c *Client) FetchPost(ctx context.Context, id string) (*Payload, error) {
	q := fieldQuery()
	endpoint := c.cfg.BaseURL + "/2/tweets/" + url.PathEscape(id) + "?" + q.Encode()

	body, err := c.get(ctx, EndpointPost, endpoint)
	if err != nil {
		return nil, err
	}

	var resp singleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", EndpointPost, err)
	}
	if resp.Data == nil {
		if detail := problemsString(resp.Errors); detail != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrPostNotFound, id, detail)
		}
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}

	payload := resp.Includes.toPayload([]apiPost{*resp.Data})
	return &payload, nil
}

// FetchPosts looks up to MaxBatchIDs posts in one call. Posts the API
// cannot return (deleted, protected) are silently missing from the result.
func (c *Client) FetchPosts(ctx context.Context, ids []string) (*Payload, error) {
	if len(ids) == 0 {
		return &Payload{}, nil
	}
	if len(ids) > MaxBatchIDs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), MaxBatchIDs)
	}

	q := fieldQuery()
	q.Set("ids", strings.Join(ids, ","))
	endpoint := c.cfg.BaseURL + "/2/tweets?" + q.Encode()

	body, err := c.get(ctx, EndpointPosts, endpoint)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", EndpointPosts, err)
	}
	if len(resp.Errors) > 0 {
		c.logger.Debug("batch lookup returned partial errors",
			slog.Int("requested", len(ids)),
			slog.Int("errors", len(resp.Errors)),
			slog.String("first", problemsString(resp.Errors)))
	}

	payload := resp.Includes.toPayload(resp.Data)
	return &payload, nil
}

// SearchConversation returns up to MaxSearchResults posts of a conversation,
// newest first. A zero result count is not an error.
func (c *Client) SearchConversation(ctx context.Context, conversationID string) (*SearchResult, error) {
	q := fieldQuery()
	q.Set("query", "conversation_id:"+conversationID)
	q.Set("max_results", strconv.Itoa(MaxSearchResults))
	endpoint := c.cfg.BaseURL + "/2/tweets/search/recent?" + q.Encode()

	body, err := c.get(ctx, EndpointSearch, endpoint)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", EndpointSearch, err)
	}

	result := &SearchResult{
		ResultCount: resp.Meta.ResultCount,
		NextToken:   resp.Meta.NextToken,
	}
	if resp.Meta.ResultCount == 0 {
		return result, nil
	}
	result.Payload = resp.Includes.toPayload(resp.Data)
	return result, nil
}

// get performs one authenticated GET. Errors are returned as-is: callers
// decide whether anything is worth retrying.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	if c.cfg.BearerToken == "" {
		return nil, ErrMissingCredential
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	headers := map[string]string{
		"authorization": "Bearer " + c.cfg.BearerToken,
		"accept":        "application/json",
	}

	start := time.Now()
	body, status, err := c.cfg.Transport.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	c.logger.Debug("api request",
		slog.String("endpoint", endpoint),
		slog.Int("status", status),
		slog.Duration("elapsed", time.Since(start)))

	if status < 200 || status > 299 {
		return nil, &HTTPError{Endpoint: endpoint, Status: status, Body: truncateBytes(body, 200)}
	}
	return body, nil
}
