package xapi

import (
	"net/url"
	"strings"
)

// Requested fields are fixed. Every endpoint asks for the same shape so the
// assembler never has to deal with partially populated posts.
var (
	postFields = []string{
		"attachments", "author_id", "conversation_id", "created_at",
		"entities", "in_reply_to_user_id", "lang", "referenced_tweets",
	}
	expansions = []string{
		"author_id", "attachments.media_keys",
	}
	userFields = []string{
		"name", "username", "profile_image_url",
	}
	mediaFields = []string{
		"media_key", "type", "url", "preview_image_url", "width", "height",
	}
)

// fieldQuery returns the shared field selection as query values.
func fieldQuery() url.Values {
	q := url.Values{}
	q.Set("tweet.fields", strings.Join(postFields, ","))
	q.Set("expansions", strings.Join(expansions, ","))
	q.Set("user.fields", strings.Join(userFields, ","))
	q.Set("media.fields", strings.Join(mediaFields, ","))
	return q
}
