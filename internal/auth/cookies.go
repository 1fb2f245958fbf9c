// Package auth keeps a logged-in X.com browser session so the reply fallback
// sees what a signed-in reader sees.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/threadpress/internal/config"
)

// Session cookies X sets on login; both must be present.
const (
	CookieAuthToken = "auth_token"
	CookieCSRF      = "ct0"
)

// ErrNoSession is returned when no session has been stored.
var ErrNoSession = errors.New("no stored session")

// CookieStore persists X.com session cookies as JSON
type CookieStore struct {
	path string
	now  func() time.Time
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []Cookie  `json:"cookies"`
	CapturedAt time.Time `json:"captured_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Cookie is the persisted subset of a browser cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

func fromNetwork(c *network.Cookie) Cookie {
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
}

func (c Cookie) toNetwork() *network.Cookie {
	return &network.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: network.CookieSameSite(c.SameSite),
	}
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now}
}

// DefaultCookieStorePath returns <ConfigDir>/session.json
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "session.json"), nil
}

// Path is where the session is stored.
func (cs *CookieStore) Path() string {
	return cs.path
}

// Save persists cookies with owner-only permissions. The session expires
// with the earliest of its auth cookies.
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	var earliestExpiry time.Time
	kept := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		kept = append(kept, fromNetwork(c))
		if !isAuthCookie(c.Name) || c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliestExpiry.IsZero() || exp.Before(earliestExpiry) {
			earliestExpiry = exp
		}
	}

	stored := StoredCookies{
		Cookies:    kept,
		CapturedAt: cs.now().UTC(),
		ExpiresAt:  earliestExpiry.UTC(),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0600)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", cs.path, err)
	}
	return &stored, nil
}

// IsValid reports whether a stored session exists, has not expired and
// carries both auth cookies.
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if stored.ExpiresAt.IsZero() || cs.now().After(stored.ExpiresAt) {
		return false
	}

	var hasAuthToken, hasCSRF bool
	for _, c := range stored.Cookies {
		switch c.Name {
		case CookieAuthToken:
			hasAuthToken = c.Value != ""
		case CookieCSRF:
			hasCSRF = c.Value != ""
		}
	}
	return hasAuthToken && hasCSRF
}

// Clear removes the stored session. Clearing an absent session is not an error.
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GetXCookies returns the stored cookies scoped to x.com
func (cs *CookieStore) GetXCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var xCookies []*network.Cookie
	for _, c := range stored.Cookies {
		if isXDomain(c.Domain) {
			xCookies = append(xCookies, c.toNetwork())
		}
	}
	return xCookies, nil
}

func isAuthCookie(name string) bool {
	return name == CookieAuthToken || name == CookieCSRF
}

func isXDomain(domain string) bool {
	d := strings.TrimPrefix(domain, ".")
	return d == "x.com" || strings.HasSuffix(d, ".x.com")
}
