package mrecipe

import (
	"time"

	"github.com/platefeed/server/pkg/idwrap"
	"github.com/platefeed/server/pkg/model/mcomment"
)

// RecipeEntry is a posted recipe. ID is assigned by the backend directory on
// creation and is empty before the entry has been persisted. Likes maps a
// liking user id to a presence marker; its size is the like count. Bookmarks
// is a server-maintained counter and is not derivable from any client-visible
// set.
type RecipeEntry struct {
	ID          string
	Name        string
	UserID      string
	Description string
	Ingredients []string
	Directions  []string
	Likes       map[string]int
	Bookmarks   int
	DateTime    string
	Comments    map[string]mcomment.Comment
}

func (r RecipeEntry) LikeCount() int {
	return len(r.Likes)
}

// GetCreatedTime derives the creation time from the backend-assigned ULID.
// Returns the zero time for entries without an assigned id.
func (r RecipeEntry) GetCreatedTime() time.Time {
	id, err := idwrap.NewText(r.ID)
	if err != nil {
		return time.Time{}
	}
	return id.Time()
}

// Clone returns a deep copy so cached snapshots cannot alias feed state.
func (r RecipeEntry) Clone() RecipeEntry {
	out := r
	out.Ingredients = append([]string(nil), r.Ingredients...)
	out.Directions = append([]string(nil), r.Directions...)
	if r.Likes != nil {
		out.Likes = make(map[string]int, len(r.Likes))
		for k, v := range r.Likes {
			out.Likes[k] = v
		}
	}
	if r.Comments != nil {
		out.Comments = make(map[string]mcomment.Comment, len(r.Comments))
		for k, v := range r.Comments {
			out.Comments[k] = v
		}
	}
	return out
}
