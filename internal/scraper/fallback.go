package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Renderer launches disposable browser pages. Every Launch must return a
// fresh, isolated instance.
type Renderer interface {
	Launch(ctx context.Context) (Page, error)
}

// Page is a single rendered page in a launched browser.
type Page interface {
	// Navigate loads url and returns once the network has gone idle.
	Navigate(ctx context.Context, url string) error
	// Wait dwells for d to let client-side rendering settle.
	Wait(ctx context.Context, d time.Duration) error
	// Evaluate runs a JavaScript expression and stores its result in res.
	Evaluate(ctx context.Context, expression string, res any) error
	// Close terminates the browser instance.
	Close() error
}

// FallbackConfig controls the reply recovery protocol
type FallbackConfig struct {
	SettleDelay time.Duration // after network idle
	ExpandDelay time.Duration // after clicking "show replies"
	MaxIDs      int
}

func (cfg *FallbackConfig) defaults() {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 4 * time.Second
	}
	if cfg.ExpandDelay <= 0 {
		cfg.ExpandDelay = 2 * time.Second
	}
	if cfg.MaxIDs <= 0 || cfg.MaxIDs > MaxReplyIDs {
		cfg.MaxIDs = MaxReplyIDs
	}
}

// Fallback recovers reply IDs that the search index no longer has by
// rendering the live post page.
type Fallback struct {
	renderer Renderer
	cfg      FallbackConfig
	logger   *slog.Logger
}

// NewFallback creates a fallback scraper around a renderer.
func NewFallback(renderer Renderer, cfg FallbackConfig, logger *slog.Logger) *Fallback {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scraper")),
	}
}

// ScrapeReplyIDs returns reply IDs in the order they appear on the page.
// Failures are logged and yield an empty list so resolution can go on.
func (f *Fallback) ScrapeReplyIDs(ctx context.Context, pageURL string) []string {
	start := time.Now()

	page, err := f.renderer.Launch(ctx)
	if err != nil {
		f.logger.Warn("browser launch failed", slog.String("url", pageURL), slog.Any("error", err))
		return []string{}
	}
	defer func() {
		if err := page.Close(); err != nil {
			f.logger.Warn("browser close failed", slog.Any("error", err))
		}
	}()

	ids, err := f.scan(ctx, page, pageURL)
	if err != nil {
		f.logger.Warn("reply scan failed", slog.String("url", pageURL), slog.Any("error", err))
		return []string{}
	}

	f.logger.Info("reply scan complete",
		slog.String("url", pageURL),
		slog.Int("ids", len(ids)),
		slog.Duration("elapsed", time.Since(start)))
	return ids
}

func (f *Fallback) scan(ctx context.Context, page Page, pageURL string) ([]string, error) {
	if err := page.Navigate(ctx, pageURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.Wait(ctx, f.cfg.SettleDelay); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	var expanded bool
	if err := page.Evaluate(ctx, expandRepliesJS, &expanded); err != nil {
		return nil, fmt.Errorf("expand replies: %w", err)
	}
	f.logger.Debug("expand replies", slog.Bool("clicked", expanded))
	if err := page.Wait(ctx, f.cfg.ExpandDelay); err != nil {
		return nil, fmt.Errorf("expand settle: %w", err)
	}

	var markup string
	if err := page.Evaluate(ctx, documentMarkupJS, &markup); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	return ScanMarkup(markup, f.cfg.MaxIDs)
}
