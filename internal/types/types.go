package types

import "time"

// Reference kinds returned by the API for referenced posts.
const (
	RefRepliedTo = "replied_to"
	RefQuoted    = "quoted"
	RefRetweeted = "retweeted"
)

// Media kinds. Anything that is not a photo is rendered through its preview.
const (
	MediaPhoto       = "photo"
	MediaVideo       = "video"
	MediaAnimatedGIF = "animated_gif"
)

// Post represents a single X post as returned by the API
type Post struct {
	ID             string      `json:"id"`
	AuthorID       string      `json:"author_id"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"created_at"`
	ConversationID string      `json:"conversation_id"`
	References     []Reference `json:"references,omitempty"`
	MediaKeys      []string    `json:"media_keys,omitempty"`
	URLs           []URLEntity `json:"urls,omitempty"`
}

// IsConversationRoot reports whether the post starts its own conversation.
func (p Post) IsConversationRoot() bool {
	return p.ConversationID == "" || p.ConversationID == p.ID
}

// Reference points at another post (reply target, quote, retweet)
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// URLEntity is a shortened URL inside a post's text
type URLEntity struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
}

// Author represents a post author
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	AvatarURL string `json:"avatar_url"`
}

// Media is an attachment referenced by a post's media keys
type Media struct {
	Key        string `json:"key"`
	Kind       string `json:"kind"`
	PreviewURL string `json:"preview_url,omitempty"`
	URL        string `json:"url,omitempty"`
}

// IsPhoto reports whether the media can be embedded directly as an image.
func (m Media) IsPhoto() bool {
	return m.Kind == MediaPhoto
}

// PostView is a post joined with its media attachments
type PostView struct {
	Post  Post    `json:"post"`
	Media []Media `json:"media,omitempty"`
}

// Thread is the chronologically ordered set of posts of one conversation
type Thread struct {
	RootID  string            `json:"root_id"`
	Posts   []PostView        `json:"posts"`
	Authors map[string]Author `json:"authors"`
}

// Author returns the author with the given ID, if the thread knows it.
func (t *Thread) Author(id string) (Author, bool) {
	a, ok := t.Authors[id]
	return a, ok
}

// Root returns the first post of the thread.
func (t *Thread) Root() (PostView, bool) {
	if len(t.Posts) == 0 {
		return PostView{}, false
	}
	return t.Posts[0], true
}

// Article is the rendered output handed to the content pipeline
type Article struct {
	PostID         string    `json:"post_id"`
	ConversationID string    `json:"conversation_id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	AuthorHandle   string    `json:"author_handle"`
	Content        string    `json:"content"`
	PostCount      int       `json:"post_count"`
	Route          string    `json:"route"`
	RootCreatedAt  time.Time `json:"root_created_at"`
	ResolvedAt     time.Time `json:"resolved_at"`
}
