package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/threadpress/internal/auth"
	browseropts "github.com/ibeckermayer/threadpress/internal/browser"
	"github.com/ibeckermayer/threadpress/internal/config"
	"github.com/ibeckermayer/threadpress/internal/render"
	"github.com/ibeckermayer/threadpress/internal/resolver"
	"github.com/ibeckermayer/threadpress/internal/scraper"
	"github.com/ibeckermayer/threadpress/internal/store"
	"github.com/ibeckermayer/threadpress/internal/types"
	"github.com/ibeckermayer/threadpress/internal/xapi"
)

// ErrArchiveDisabled is returned by archive reads when archive.enabled is off.
var ErrArchiveDisabled = errors.New("article archive is disabled")

// threadResolver is the part of *resolver.Resolver the app drives
type threadResolver interface {
	ResolveThread(ctx context.Context, rawURL string) (*resolver.Resolution, error)
	Render(res *resolver.Resolution, rawURL string) (*types.Article, error)
}

// replyScanner is the part of *scraper.Fallback the app drives
type replyScanner interface {
	ScrapeReplyIDs(ctx context.Context, pageURL string) []string
}

// App holds the application state.
type App struct {
	mu          sync.RWMutex
	authManager *auth.Manager // immutable after creation
	archive     *store.Store  // nil when the archive is disabled
	logger      *slog.Logger
	now         func() time.Time

	// Mutable fields - use getSnapshot() for concurrent access.
	config    *config.Config
	resolver  threadResolver
	scanner   replyScanner
	snapshots *store.Snapshots
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config    *config.Config
	resolver  threadResolver
	scanner   replyScanner
	snapshots *store.Snapshots
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:    a.config,
		resolver:  a.resolver,
		scanner:   a.scanner,
		snapshots: a.snapshots,
	}
}

// New creates a new App instance. archive may be nil.
func New(cfg *config.Config, authManager *auth.Manager, archive *store.Store, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		authManager: authManager,
		archive:     archive,
		logger:      logger,
		now:         time.Now,
	}

	c, err := a.build(cfg)
	if err != nil {
		return nil, err
	}
	a.install(cfg, c)
	return a, nil
}

// Open builds the app from cfg with the default session file and, when
// enabled, the sqlite archive. Close releases the archive.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	sessionPath, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, fmt.Errorf("session path: %w", err)
	}
	authManager := auth.NewManager(auth.NewCookieStore(sessionPath),
		cfg.Resolver.PageBaseURL, cfg.Browser.ExecPath, logger)

	var archive *store.Store
	if cfg.Archive.Enabled {
		path, err := cfg.ArchivePath()
		if err != nil {
			return nil, err
		}
		if archive, err = store.New(path); err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}

	a, err := New(cfg, authManager, archive, logger)
	if err != nil {
		if archive != nil {
			archive.Close()
		}
		return nil, err
	}
	return a, nil
}

// Close releases the archive.
func (a *App) Close() error {
	if a.archive == nil {
		return nil
	}
	return a.archive.Close()
}

// components are rebuilt from scratch on every config change
type components struct {
	resolver  *resolver.Resolver
	fallback  *scraper.Fallback
	snapshots *store.Snapshots
}

func (a *App) build(cfg *config.Config) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transport xapi.Transport
	if cfg.API.Transport == "stealth" {
		st, err := xapi.NewStealthTransport(cfg.API.Proxy)
		if err != nil {
			return nil, err
		}
		transport = st
	}
	client := xapi.NewClient(xapi.ClientConfig{
		BearerToken:       cfg.API.BearerToken,
		BaseURL:           cfg.API.BaseURL,
		Transport:         transport,
		Timeout:           cfg.API.Timeout.Std(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Logger:            a.logger,
	})

	renderer, err := render.New(cfg.Render.Timezone, cfg.Resolver.PageBaseURL)
	if err != nil {
		return nil, err
	}

	var session scraper.SessionSource
	if cfg.Browser.UseSession && a.authManager != nil {
		session = a.authManager
	}
	chrome := scraper.NewChromeRenderer(scraper.ChromeConfig{
		Browser: browseropts.Config{
			Headless: cfg.Browser.Headless,
			ExecPath: cfg.Browser.ExecPath,
		},
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		ScaleFactor:       cfg.Browser.ScaleFactor,
		NavigationTimeout: cfg.Browser.NavigationTimeout.Std(),
		Session:           session,
	}, a.logger)
	fallback := scraper.NewFallback(chrome, scraper.FallbackConfig{
		SettleDelay: cfg.Browser.SettleDelay.Std(),
		ExpandDelay: cfg.Browser.ExpandDelay.Std(),
		MaxIDs:      cfg.Resolver.MaxReplies,
	}, a.logger)

	res := resolver.New(resolver.Config{
		RecentWindow: cfg.Resolver.RecentWindow.Std(),
		MaxReplies:   cfg.Resolver.MaxReplies,
		PageBaseURL:  cfg.Resolver.PageBaseURL,
	}, client, fallback, renderer, a.logger)

	c := &components{resolver: res, fallback: fallback}
	if cfg.Debug.Snapshots {
		cacheDir, err := config.CacheDir()
		if err != nil {
			return nil, err
		}
		c.snapshots = store.NewSnapshots(filepath.Join(cacheDir, "snapshots"))
	}
	return c, nil
}

func (a *App) install(cfg *config.Config, c *components) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config = cfg
	a.resolver = c.resolver
	a.scanner = c.fallback
	a.snapshots = c.snapshots
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// Resolve turns a post URL into an article and archives it.
func (a *App) Resolve(ctx context.Context, rawURL string) (*types.Article, error) {
	s := a.getSnapshot()

	res, err := s.resolver.ResolveThread(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if s.snapshots != nil {
		a.saveSnapshot(s.snapshots, store.SnapshotThread, res.Thread.RootID, res.Thread)
	}

	article, err := s.resolver.Render(res, rawURL)
	if err != nil {
		return nil, err
	}
	if s.snapshots != nil {
		a.saveSnapshot(s.snapshots, store.SnapshotArticle, article.ConversationID, article)
	}

	if a.archive != nil {
		if err := a.archive.SaveArticle(ctx, article); err != nil {
			a.logger.Warn("failed to archive article",
				slog.String("conversation_id", article.ConversationID),
				slog.Any("error", err))
		}
	}
	return article, nil
}

// ResolveMany resolves several URLs, at most limit at a time. Results keep
// the order of urls. The first failure cancels the rest.
func (a *App) ResolveMany(ctx context.Context, urls []string, limit int) ([]*types.Article, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	articles := make([]*types.Article, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, u := range urls {
		g.Go(func() error {
			article, err := a.Resolve(ctx, u)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", u, err)
			}
			articles[i] = article
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return articles, nil
}

// ScanReplies runs only the browser fallback against a post page.
func (a *App) ScanReplies(ctx context.Context, pageURL string) ([]string, error) {
	id, ok := xapi.ExtractPostID(pageURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", resolver.ErrNoPostID, pageURL)
	}

	s := a.getSnapshot()
	ids := s.scanner.ScrapeReplyIDs(ctx, pageURL)
	if s.snapshots != nil {
		a.saveSnapshot(s.snapshots, store.SnapshotReplyIDs, id, ids)
	}
	return ids, nil
}

func (a *App) saveSnapshot(snaps *store.Snapshots, kind store.SnapshotKind, name string, data any) {
	path, err := store.SaveSnapshot(snaps, kind, name, data)
	if err != nil {
		a.logger.Warn("failed to save snapshot", slog.String("kind", string(kind)), slog.Any("error", err))
		return
	}
	a.logger.Debug("saved snapshot", slog.String("path", path))
}

// RefreshResult summarises one refresh run
type RefreshResult struct {
	Checked   int
	Refreshed int
	Failed    int
}

// RefreshArchive re-resolves archived conversations whose root is younger
// than refresh.max_age, one at a time. Failures are logged and skipped.
func (a *App) RefreshArchive(ctx context.Context) (*RefreshResult, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}

	s := a.getSnapshot()
	since := a.now().Add(-s.config.Refresh.MaxAge.Std())
	articles, err := a.archive.ArticlesCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list articles to refresh: %w", err)
	}

	result := &RefreshResult{Checked: len(articles)}
	for _, art := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		updated, err := a.Resolve(ctx, art.URL)
		if err != nil {
			result.Failed++
			a.logger.Warn("refresh failed",
				slog.String("conversation_id", art.ConversationID),
				slog.Any("error", err))
			continue
		}
		result.Refreshed++
		if updated.PostCount != art.PostCount {
			a.logger.Info("thread grew",
				slog.String("conversation_id", art.ConversationID),
				slog.Int("before", art.PostCount),
				slog.Int("after", updated.PostCount))
		}
	}

	a.logger.Info("refresh complete",
		slog.Int("checked", result.Checked),
		slog.Int("refreshed", result.Refreshed),
		slog.Int("failed", result.Failed))
	return result, nil
}

// HasArchive reports whether the sqlite archive was opened. It does not
// change on ReloadConfig.
func (a *App) HasArchive() bool {
	return a.archive != nil
}

// Article returns an archived article by conversation or post ID.
func (a *App) Article(ctx context.Context, id string) (*types.Article, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archive.GetArticle(ctx, id)
}

// ListArticles returns the most recently resolved archived articles.
func (a *App) ListArticles(ctx context.Context, limit int) ([]store.ArticleSummary, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archive.ListArticles(ctx, limit)
}

// History returns how often a conversation was resolved and how big it was.
func (a *App) History(ctx context.Context, conversationID string) ([]store.ResolveEvent, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archive.History(ctx, conversationID)
}

// OpenArticle writes an archived article to the cache and opens it in the
// default browser.
func (a *App) OpenArticle(ctx context.Context, id string) error {
	article, err := a.Article(ctx, id)
	if err != nil {
		return err
	}

	cacheDir, err := config.CacheDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(cacheDir, "articles")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, article.ConversationID+".html")
	if err := os.WriteFile(path, []byte(article.Content), 0644); err != nil {
		return err
	}

	a.logger.Info("opening article", slog.String("path", path))
	return browser.OpenFile(path)
}

// IsAuthenticated checks if X.com credentials are stored.
func (a *App) IsAuthenticated() bool {
	return a.authManager.IsAuthenticated()
}

// Login starts the X.com login flow.
func (a *App) Login(ctx context.Context) error {
	a.logger.Info("login triggered, opening browser for X.com authentication")
	if err := a.authManager.Login(ctx); err != nil {
		return err
	}
	a.logger.Info("login successful")
	return nil
}

// Logout clears stored X.com credentials.
func (a *App) Logout() error {
	if err := a.authManager.Logout(); err != nil {
		return err
	}
	a.logger.Info("logout successful, session cleared")
	return nil
}

// ReloadConfig reloads the configuration from disk and rebuilds the
// resolver. In-flight resolutions finish on the components they started with.
func (a *App) ReloadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	c, err := a.build(cfg)
	if err != nil {
		return err
	}
	a.install(cfg, c)

	a.logger.Info("configuration reloaded")
	return nil
}
