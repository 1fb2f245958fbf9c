package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/threadpress/internal/browser"
)

// LoginTimeout is how long the user has to finish logging in.
const LoginTimeout = 5 * time.Minute

// Manager handles X.com authentication
type Manager struct {
	cookieStore *CookieStore
	execPath    string
	siteURL     string
	logger      *slog.Logger
}

// NewManager creates a new auth manager. siteURL is the X origin
// (https://x.com); execPath optionally pins the Chrome binary.
func NewManager(cookieStore *CookieStore, siteURL, execPath string, logger *slog.Logger) *Manager {
	if siteURL == "" {
		siteURL = "https://x.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cookieStore: cookieStore,
		execPath:    execPath,
		siteURL:     strings.TrimRight(siteURL, "/"),
		logger:      logger.With(slog.String("component", "auth")),
	}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a visible browser at the login page, waits for the user to
// reach the home timeline and stores the session cookies.
func (m *Manager) Login(ctx context.Context) error {
	opts := append(browser.Options(browser.Config{Headless: false, ExecPath: m.execPath}),
		chromedp.Flag("start-maximized", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(m.siteURL+"/login")); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	m.logger.Info("waiting for login", slog.Duration("timeout", LoginTimeout))

	if err := m.waitForLogin(browserCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cookies, err := m.extractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("failed to extract cookies: %w", err)
	}
	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	m.logger.Info("session stored", slog.String("path", m.cookieStore.Path()), slog.Int("cookies", len(cookies)))
	return nil
}

// waitForLogin polls until the browser sits on the home timeline with an
// auth_token cookie.
func (m *Manager) waitForLogin(ctx context.Context) error {
	timeout := time.After(LoginTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("login timeout exceeded")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !isHomeTimeline(url) {
				continue
			}

			cookies, err := m.extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == CookieAuthToken && c.Value != "" {
					return nil
				}
			}
		}
	}
}

func isHomeTimeline(url string) bool {
	url = strings.TrimRight(url, "/")
	return url == "https://x.com/home" || url == "https://twitter.com/home"
}

// extractCookies gets all cookies from the browser
func (m *Manager) extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// GetCookies returns the stored x.com cookies for the browser fallback
func (m *Manager) GetCookies() ([]*network.Cookie, error) {
	return m.cookieStore.GetXCookies()
}
