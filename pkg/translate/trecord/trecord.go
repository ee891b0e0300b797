// Package trecord converts between in-memory models and the tree-structured
// records persisted in the backend directory. Decoding is strict: a record
// missing any required field is rejected with ErrMalformedRecord so the caller
// can drop it instead of caching a half-parsed entry.
package trecord

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/platefeed/server/pkg/model/mcomment"
	"github.com/platefeed/server/pkg/model/mrecipe"
)

var (
	ErrMalformedRecord = errors.New("trecord: malformed record")
	ErrNoID            = errors.New("trecord: entry has no assigned id")
)

type recipeRecord struct {
	ID          *string                  `json:"id"`
	Name        *string                  `json:"name"`
	User        *string                  `json:"user"`
	Description *string                  `json:"description"`
	Ingredients *[]string                `json:"ingredients"`
	Directions  *[]string                `json:"directions"`
	Likes       map[string]int           `json:"likes"`
	Bookmarks   *int                     `json:"bookmarks"`
	DateTime    *string                  `json:"datetime"`
	Comments    map[string]commentRecord `json:"comments"`
}

type commentRecord struct {
	ID       *string `json:"id"`
	User     *string `json:"user"`
	DateTime *string `json:"datetime"`
	Content  *string `json:"content"`
}

func missingField(name string) error {
	return fmt.Errorf("%w: missing or mistyped field %q", ErrMalformedRecord, name)
}

// RecipeToRecord encodes an entry into the persisted record shape as a JSON
// tree suitable for directory.SetChild. Entries without an assigned id cannot
// be persisted.
func RecipeToRecord(entry mrecipe.RecipeEntry) (map[string]any, error) {
	if entry.ID == "" {
		return nil, ErrNoID
	}
	likes := entry.Likes
	if likes == nil {
		likes = map[string]int{}
	}
	comments := make(map[string]commentRecord, len(entry.Comments))
	for key, c := range entry.Comments {
		c := c
		comments[key] = commentRecord{
			ID:       &c.ID,
			User:     &c.UserID,
			DateTime: &c.DateTime,
			Content:  &c.Content,
		}
	}
	rec := recipeRecord{
		ID:          &entry.ID,
		Name:        &entry.Name,
		User:        &entry.UserID,
		Description: &entry.Description,
		Ingredients: &entry.Ingredients,
		Directions:  &entry.Directions,
		Likes:       likes,
		Bookmarks:   &entry.Bookmarks,
		DateTime:    &entry.DateTime,
		Comments:    comments,
	}
	return toTree(rec)
}

// RecordToRecipe decodes a directory value into a RecipeEntry. The likes and
// comments mappings are optional in the stored shape (the backend elides empty
// children); every other field is required.
func RecordToRecipe(value any) (mrecipe.RecipeEntry, error) {
	var rec recipeRecord
	if err := fromTree(value, &rec); err != nil {
		return mrecipe.RecipeEntry{}, err
	}

	switch {
	case rec.ID == nil:
		return mrecipe.RecipeEntry{}, missingField("id")
	case rec.Name == nil:
		return mrecipe.RecipeEntry{}, missingField("name")
	case rec.User == nil:
		return mrecipe.RecipeEntry{}, missingField("user")
	case rec.Description == nil:
		return mrecipe.RecipeEntry{}, missingField("description")
	case rec.Ingredients == nil:
		return mrecipe.RecipeEntry{}, missingField("ingredients")
	case rec.Directions == nil:
		return mrecipe.RecipeEntry{}, missingField("directions")
	case rec.Bookmarks == nil:
		return mrecipe.RecipeEntry{}, missingField("bookmarks")
	case rec.DateTime == nil:
		return mrecipe.RecipeEntry{}, missingField("datetime")
	}

	likes := rec.Likes
	if likes == nil {
		likes = map[string]int{}
	}
	comments := make(map[string]mcomment.Comment, len(rec.Comments))
	for key, c := range rec.Comments {
		decoded, err := decodeComment(c)
		if err != nil {
			return mrecipe.RecipeEntry{}, err
		}
		comments[key] = decoded
	}

	return mrecipe.RecipeEntry{
		ID:          *rec.ID,
		Name:        *rec.Name,
		UserID:      *rec.User,
		Description: *rec.Description,
		Ingredients: *rec.Ingredients,
		Directions:  *rec.Directions,
		Likes:       likes,
		Bookmarks:   *rec.Bookmarks,
		DateTime:    *rec.DateTime,
		Comments:    comments,
	}, nil
}

// CommentToRecord encodes a comment into its persisted shape.
func CommentToRecord(comment mcomment.Comment) (map[string]any, error) {
	if comment.ID == "" {
		return nil, ErrNoID
	}
	rec := commentRecord{
		ID:       &comment.ID,
		User:     &comment.UserID,
		DateTime: &comment.DateTime,
		Content:  &comment.Content,
	}
	return toTree(rec)
}

// RecordToComment decodes a directory value into a Comment.
func RecordToComment(value any) (mcomment.Comment, error) {
	var rec commentRecord
	if err := fromTree(value, &rec); err != nil {
		return mcomment.Comment{}, err
	}
	return decodeComment(rec)
}

func decodeComment(rec commentRecord) (mcomment.Comment, error) {
	switch {
	case rec.ID == nil:
		return mcomment.Comment{}, missingField("comment.id")
	case rec.User == nil:
		return mcomment.Comment{}, missingField("comment.user")
	case rec.DateTime == nil:
		return mcomment.Comment{}, missingField("comment.datetime")
	case rec.Content == nil:
		return mcomment.Comment{}, missingField("comment.content")
	}
	return mcomment.Comment{
		ID:       *rec.ID,
		UserID:   *rec.User,
		DateTime: *rec.DateTime,
		Content:  *rec.Content,
	}, nil
}

func toTree(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree(value any, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
