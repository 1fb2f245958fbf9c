// Package store archives resolved articles in SQLite and keeps debug
// snapshots in the cache directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/threadpress/internal/types"
)

// ErrNotFound is returned when no archived article matches.
var ErrNotFound = errors.New("article not found")

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; the service and the refresh job share the handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema. Times are unix milliseconds.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		conversation_id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		author_handle TEXT,
		content TEXT NOT NULL,
		post_count INTEGER NOT NULL,
		route TEXT NOT NULL,
		root_created_at INTEGER NOT NULL,
		resolved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resolve_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES articles(conversation_id),
		post_count INTEGER NOT NULL,
		route TEXT NOT NULL,
		resolved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_post_id ON articles(post_id);
	CREATE INDEX IF NOT EXISTS idx_articles_root_created_at ON articles(root_created_at);
	CREATE INDEX IF NOT EXISTS idx_articles_resolved_at ON articles(resolved_at);
	CREATE INDEX IF NOT EXISTS idx_history_conversation ON resolve_history(conversation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveArticle inserts or replaces the article for its conversation and
// records the resolution in the history.
func (s *Store) SaveArticle(ctx context.Context, a *types.Article) error {
	if a.ConversationID == "" {
		return errors.New("article has no conversation id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (conversation_id, post_id, url, title, description,
			author_handle, content, post_count, route, root_created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			post_id = excluded.post_id,
			url = excluded.url,
			title = excluded.title,
			description = excluded.description,
			author_handle = excluded.author_handle,
			content = excluded.content,
			post_count = excluded.post_count,
			route = excluded.route,
			resolved_at = excluded.resolved_at
	`, a.ConversationID, a.PostID, a.URL, a.Title, a.Description,
		a.AuthorHandle, a.Content, a.PostCount, a.Route,
		a.RootCreatedAt.UnixMilli(), a.ResolvedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save article %s: %w", a.ConversationID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resolve_history (conversation_id, post_count, route, resolved_at)
		VALUES (?, ?, ?, ?)
	`, a.ConversationID, a.PostCount, a.Route, a.ResolvedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record resolution %s: %w", a.ConversationID, err)
	}

	return tx.Commit()
}

// GetArticle returns the archived article whose conversation or requested
// post has the given ID.
func (s *Store) GetArticle(ctx context.Context, id string) (*types.Article, error) {
	var (
		a                   types.Article
		description, handle sql.NullString
		created, resolved   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, post_id, url, title, description, author_handle,
			content, post_count, route, root_created_at, resolved_at
		FROM articles
		WHERE conversation_id = ? OR post_id = ?
		ORDER BY conversation_id = ? DESC
		LIMIT 1
	`, id, id, id).Scan(
		&a.ConversationID, &a.PostID, &a.URL, &a.Title, &description, &handle,
		&a.Content, &a.PostCount, &a.Route, &created, &resolved,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Description = description.String
	a.AuthorHandle = handle.String
	a.RootCreatedAt = fromMillis(created)
	a.ResolvedAt = fromMillis(resolved)
	return &a, nil
}

// ListArticles returns the most recently resolved articles first.
func (s *Store) ListArticles(ctx context.Context, limit int) ([]ArticleSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM articles
		ORDER BY resolved_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// ArticlesCreatedSince returns articles whose conversation root was
// created at or after t, oldest root first.
func (s *Store) ArticlesCreatedSince(ctx context.Context, t time.Time) ([]ArticleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM articles
		WHERE root_created_at >= ?
		ORDER BY root_created_at ASC
	`, t.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// History returns the resolutions of a conversation, oldest first.
func (s *Store) History(ctx context.Context, conversationID string) ([]ResolveEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, post_count, route, resolved_at
		FROM resolve_history
		WHERE conversation_id = ?
		ORDER BY resolved_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]ResolveEvent, 0)
	for rows.Next() {
		var e ResolveEvent
		var resolved int64
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.PostCount, &e.Route, &resolved); err != nil {
			return nil, err
		}
		e.ResolvedAt = fromMillis(resolved)
		events = append(events, e)
	}
	return events, rows.Err()
}

const summaryColumns = `conversation_id, post_id, url, title, author_handle,
	post_count, route, root_created_at, resolved_at`

func scanSummaries(rows *sql.Rows) ([]ArticleSummary, error) {
	summaries := make([]ArticleSummary, 0)
	for rows.Next() {
		var (
			a                 ArticleSummary
			handle            sql.NullString
			created, resolved int64
		)
		err := rows.Scan(
			&a.ConversationID, &a.PostID, &a.URL, &a.Title, &handle,
			&a.PostCount, &a.Route, &created, &resolved,
		)
		if err != nil {
			return nil, err
		}
		a.AuthorHandle = handle.String
		a.RootCreatedAt = fromMillis(created)
		a.ResolvedAt = fromMillis(resolved)
		summaries = append(summaries, a)
	}
	return summaries, rows.Err()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
