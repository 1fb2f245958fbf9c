package xapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
)

// Transport performs a single GET and returns the raw body and status.
// Implementations must not retry.
type Transport interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error)
}

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 8 << 20

// HTTPTransport is a Transport backed by net/http
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// apiHeaderOrder is the header order the stealth client sends.
var apiHeaderOrder = []string{
	"authorization",
	"accept",
	"accept-language",
	"accept-encoding",
	"user-agent",
}

// StealthTransport sends requests through go-stealth's browser-fingerprinted
// client, for deployments where the API sits behind bot filtering.
type StealthTransport struct {
	client *stealth.BrowserClient
}

// NewStealthTransport creates a stealth transport, optionally via a proxy.
func NewStealthTransport(proxy string) (*StealthTransport, error) {
	opts := []stealth.ClientOption{
		stealth.WithHeaderOrder(apiHeaderOrder),
	}
	if proxy != "" {
		opts = append(opts, stealth.WithProxy(proxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}
	return &StealthTransport{client: bc}, nil
}

func (t *StealthTransport) Get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	body, _, status, err := t.client.DoWithHeaderOrder(http.MethodGet, url, headers, nil, apiHeaderOrder)
	if err != nil {
		return nil, 0, err
	}
	return body, status, nil
}
