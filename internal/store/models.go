package store

import "time"

// ArticleSummary is an archived article without its HTML
type ArticleSummary struct {
	ConversationID string    `json:"conversation_id"`
	PostID         string    `json:"post_id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	AuthorHandle   string    `json:"author_handle"`
	PostCount      int       `json:"post_count"`
	Route          string    `json:"route"`
	RootCreatedAt  time.Time `json:"root_created_at"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// ResolveEvent records one resolution of a conversation. The post count
// over time shows how a thread grew.
type ResolveEvent struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	PostCount      int       `json:"post_count"`
	Route          string    `json:"route"`
	ResolvedAt     time.Time `json:"resolved_at"`
}
