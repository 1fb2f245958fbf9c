package xapi

import (
	"time"

	"github.com/ibeckermayer/threadpress/internal/types"
)

// apiPost is the wire shape of a post
type apiPost struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
	References     []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	Entities struct {
		URLs []struct {
			Start       int    `json:"start"`
			End         int    `json:"end"`
			URL         string `json:"url"`
			ExpandedURL string `json:"expanded_url"`
			DisplayURL  string `json:"display_url"`
		} `json:"urls"`
	} `json:"entities"`
}

type apiUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type apiMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type apiIncludes struct {
	Users []apiUser  `json:"users"`
	Media []apiMedia `json:"media"`
}

type singleResponse struct {
	Data     *apiPost     `json:"data"`
	Includes apiIncludes  `json:"includes"`
	Errors   []apiProblem `json:"errors"`
}

type listResponse struct {
	Data     []apiPost    `json:"data"`
	Includes apiIncludes  `json:"includes"`
	Errors   []apiProblem `json:"errors"`
	Meta     struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
		OldestID    string `json:"oldest_id"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// Payload is a fetch result: posts plus the side lists of authors and media
// they reference.
type Payload struct {
	Posts   []types.Post
	Authors []types.Author
	Media   []types.Media
}

// SearchResult is a conversation search page. Posts are newest first.
type SearchResult struct {
	Payload
	ResultCount int
	NextToken   string
}

func (p apiPost) toPost() types.Post {
	post := types.Post{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		Text:           p.Text,
		CreatedAt:      p.CreatedAt,
		ConversationID: p.ConversationID,
		MediaKeys:      p.Attachments.MediaKeys,
	}
	for _, r := range p.References {
		post.References = append(post.References, types.Reference{Type: r.Type, ID: r.ID})
	}
	for _, u := range p.Entities.URLs {
		post.URLs = append(post.URLs, types.URLEntity{
			Start:       u.Start,
			End:         u.End,
			URL:         u.URL,
			ExpandedURL: u.ExpandedURL,
			DisplayURL:  u.DisplayURL,
		})
	}
	return post
}

func (inc apiIncludes) toPayload(posts []apiPost) Payload {
	out := Payload{
		Posts:   make([]types.Post, 0, len(posts)),
		Authors: make([]types.Author, 0, len(inc.Users)),
		Media:   make([]types.Media, 0, len(inc.Media)),
	}
	for _, p := range posts {
		out.Posts = append(out.Posts, p.toPost())
	}
	for _, u := range inc.Users {
		out.Authors = append(out.Authors, types.Author{
			ID:        u.ID,
			Name:      u.Name,
			Handle:    u.Username,
			AvatarURL: u.ProfileImageURL,
		})
	}
	for _, m := range inc.Media {
		out.Media = append(out.Media, types.Media{
			Key:        m.MediaKey,
			Kind:       m.Type,
			PreviewURL: m.PreviewImageURL,
			URL:        m.URL,
		})
	}
	return out
}
