package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/threadpress/internal/browser"
)

// SessionSource supplies logged-in X.com cookies for the browser
type SessionSource interface {
	IsAuthenticated() bool
	GetCookies() ([]*network.Cookie, error)
}

// ChromeConfig configures the chromedp renderer
type ChromeConfig struct {
	Browser browser.Config

	// The viewport is emulated at Width/Scale x Height/Scale CSS pixels with
	// the given device scale factor, so far more of the thread is laid out
	// on first render than a normal window would show.
	ViewportWidth  int
	ViewportHeight int
	ScaleFactor    float64

	NavigationTimeout time.Duration

	// Session is optional; nil browses logged out.
	Session SessionSource
}

// ChromeRenderer launches a fresh headless Chrome for every page
type ChromeRenderer struct {
	cfg    ChromeConfig
	logger *slog.Logger
}

// NewChromeRenderer creates a new renderer
func NewChromeRenderer(cfg ChromeConfig, logger *slog.Logger) *ChromeRenderer {
	if cfg.ScaleFactor <= 0 {
		cfg.ScaleFactor = 1
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{cfg: cfg, logger: logger.With(slog.String("component", "chrome"))}
}

// Launch starts an isolated browser. Each allocator gets its own temporary
// profile directory, so nothing is shared between launches.
func (r *ChromeRenderer) Launch(ctx context.Context) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browser.Options(r.cfg.Browser)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	tab := &chromeTab{
		ctx:        browserCtx,
		navTimeout: r.cfg.NavigationTimeout,
		release: func() {
			browserCancel()
			allocCancel()
		},
	}

	width, height := r.viewport()
	if err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(width, height, chromedp.EmulateScale(r.cfg.ScaleFactor)),
		page.SetLifecycleEventsEnabled(true),
	); err != nil {
		tab.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if r.cfg.Session != nil && r.cfg.Session.IsAuthenticated() {
		cookies, err := r.cfg.Session.GetCookies()
		if err != nil {
			r.logger.Warn("session cookies unavailable, browsing logged out", slog.Any("error", err))
		} else if err := injectCookies(browserCtx, cookies); err != nil {
			tab.Close()
			return nil, fmt.Errorf("failed to inject cookies: %w", err)
		}
	}

	return tab, nil
}

func (r *ChromeRenderer) viewport() (int64, int64) {
	w, h := r.cfg.ViewportWidth, r.cfg.ViewportHeight
	if w <= 0 || h <= 0 {
		w, h = 1700, 2000
	}
	return int64(float64(w) / r.cfg.ScaleFactor), int64(float64(h) / r.cfg.ScaleFactor)
}

// injectCookies sets cookies in the browser context
func injectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)

				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// chromeTab is the Page of a launched browser
type chromeTab struct {
	ctx        context.Context
	navTimeout time.Duration
	release    func()
	closeOnce  sync.Once
}

// Navigate loads the URL and waits for the "networkIdle" lifecycle event of
// the main frame's new document. Idle events from iframes are ignored.
func (t *chromeTab) Navigate(ctx context.Context, url string) error {
	idle := newIdleTracker()

	listenCtx, stopListening := context.WithCancel(t.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			idle.observe(e.FrameID, e.LoaderID)
		}
	})

	navCtx, cancel := context.WithTimeout(t.ctx, t.navTimeout)
	defer cancel()

	var main *cdp.Frame
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			main = tree.Frame
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}

	for !idle.idle(main.ID, main.LoaderID) {
		select {
		case <-idle.changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-navCtx.Done():
			return fmt.Errorf("waiting for network idle: %w", navCtx.Err())
		}
	}
	return nil
}

// idleTracker records which frame documents have reached network idle.
type idleTracker struct {
	mu      sync.Mutex
	loaders map[cdp.FrameID]map[cdp.LoaderID]bool
	changed chan struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		loaders: make(map[cdp.FrameID]map[cdp.LoaderID]bool),
		changed: make(chan struct{}, 1),
	}
}

func (it *idleTracker) observe(frame cdp.FrameID, loader cdp.LoaderID) {
	it.mu.Lock()
	if it.loaders[frame] == nil {
		it.loaders[frame] = make(map[cdp.LoaderID]bool)
	}
	it.loaders[frame][loader] = true
	it.mu.Unlock()

	select {
	case it.changed <- struct{}{}:
	default:
	}
}

// idle reports whether frame went idle for loader. An empty loader matches
// any document of the frame.
func (it *idleTracker) idle(frame cdp.FrameID, loader cdp.LoaderID) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	seen := it.loaders[frame]
	if loader == "" {
		return len(seen) > 0
	}
	return seen[loader]
}

func (t *chromeTab) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

func (t *chromeTab) Evaluate(ctx context.Context, expression string, res any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(t.ctx, chromedp.Evaluate(expression, res))
}

// Close shuts the browser down gracefully, then releases the allocator,
// which kills the process if it is still running.
func (t *chromeTab) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = chromedp.Cancel(t.ctx)
		t.release()
	})
	return err
}
