// Package likes implements the optimistic like-toggle engine for the feed client.
package likes

import (
	"slices"
	"time"
)

// Author is the public identity shown on a post.
type Author struct {
	ID          string
	DisplayName string
	Handle      string
	ImageURL    string
}

// Post is an immutable snapshot of a post as last received from the authority.
// LikeCount equals Likers.Len() in every snapshot the authority hands out.
type Post struct {
	ID           string
	Author       Author
	Content      string
	ImageURL     string
	CreatedAt    time.Time
	Likers       LikerSet
	LikeCount    int
	CommentCount int
}

// HasLiked reports whether userID is in the post's liker set.
func (p Post) HasLiked(userID string) bool {
	if userID == "" {
		return false
	}
	return p.Likers.Has(userID)
}

// DisplayFor returns the settled display state of the snapshot for userID.
func (p Post) DisplayFor(userID string) DisplayState {
	return DisplayState{Liked: p.HasLiked(userID), Count: max(p.LikeCount, 0)}
}

// withDisplay returns a copy of p whose liker set and count reflect d for userID.
func (p Post) withDisplay(userID string, d DisplayState) Post {
	out := p
	if d.Liked {
		out.Likers = p.Likers.with(userID)
	} else {
		out.Likers = p.Likers.without(userID)
	}
	out.LikeCount = d.Count
	return out
}

// LikerSet is an immutable set of user IDs. The zero value is an empty set.
type LikerSet struct {
	ids map[string]struct{}
}

// NewLikerSet builds a set from ids, dropping blanks and duplicates.
func NewLikerSet(ids ...string) LikerSet {
	set := LikerSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id == "" {
			continue
		}
		set.ids[id] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s LikerSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of distinct likers.
func (s LikerSet) Len() int {
	return len(s.ids)
}

// IDs returns the members in sorted order.
func (s LikerSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s LikerSet) with(id string) LikerSet {
	if id == "" || s.Has(id) {
		return s
	}
	return NewLikerSet(append(s.IDs(), id)...)
}

func (s LikerSet) without(id string) LikerSet {
	if !s.Has(id) {
		return s
	}
	next := LikerSet{ids: make(map[string]struct{}, len(s.ids))}
	for member := range s.ids {
		if member != id {
			next.ids[member] = struct{}{}
		}
	}
	return next
}
