package resolver

import (
	"github.com/ibeckermayer/threadpress/internal/types"
	"github.com/ibeckermayer/threadpress/internal/xapi"
)

// Assemble joins each post of a fetch result to its media by key. Media keys
// missing from the side list are skipped. Output order equals input order.
func Assemble(p *xapi.Payload) []types.PostView {
	if p == nil {
		return []types.PostView{}
	}

	media := make(map[string]types.Media, len(p.Media))
	for _, m := range p.Media {
		media[m.Key] = m
	}

	views := make([]types.PostView, 0, len(p.Posts))
	for _, post := range p.Posts {
		view := types.PostView{Post: post}
		for _, key := range post.MediaKeys {
			if m, ok := media[key]; ok {
				view.Media = append(view.Media, m)
			}
		}
		views = append(views, view)
	}
	return views
}

// indexAuthors adds a fetch result's authors to the shared index. Authors
// are resolved by ID at render time, so the first record for an ID wins.
func indexAuthors(into map[string]types.Author, authors []types.Author) {
	for _, a := range authors {
		if _, ok := into[a.ID]; !ok {
			into[a.ID] = a
		}
	}
}

func reversed(views []types.PostView) []types.PostView {
	out := make([]types.PostView, len(views))
	for i, v := range views {
		out[len(views)-1-i] = v
	}
	return out
}
