// Package srecipe owns the recipe collection: creation, likes, bookmarks,
// comments, and per-user upload tracking, all against the backend directory.
package srecipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platefeed/server/pkg/blob"
	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/model/mcomment"
	"github.com/platefeed/server/pkg/model/mrecipe"
	"github.com/platefeed/server/pkg/translate/trecord"
)

var (
	ErrRecipeNotFound = errors.New("srecipe: recipe not found")
	ErrBlankField     = errors.New("srecipe: blank text field")
)

// resolveParallelism bounds fan-out when resolving many entries at once.
const resolveParallelism = 8

type RecipeService struct {
	dir    directory.Directory
	blobs  blob.Store
	logger *slog.Logger
}

func New(dir directory.Directory, blobs blob.Store, logger *slog.Logger) RecipeService {
	return RecipeService{dir: dir, blobs: blobs, logger: logger}
}

func recipePath(recipeID string) string {
	return directory.Join("recipes", recipeID)
}

// Add persists a new entry: allocates its id, writes the record, marks it
// under users/{u}/uploaded, and stores the image blob when provided. The
// entry's ID field is filled in on success.
func (rs RecipeService) Add(ctx context.Context, entry *mrecipe.RecipeEntry, imageData []byte) error {
	if isBlank(entry.Name) || isBlank(entry.Description) {
		return ErrBlankField
	}
	if entry.UserID == "" {
		return fmt.Errorf("srecipe: entry has no owning user")
	}

	entry.ID = rs.dir.NewChildID()
	if entry.DateTime == "" {
		entry.DateTime = time.Now().Format(time.RFC3339)
	}
	record, err := trecord.RecipeToRecord(*entry)
	if err != nil {
		entry.ID = ""
		return err
	}
	if err := rs.dir.SetChild(ctx, recipePath(entry.ID), record); err != nil {
		entry.ID = ""
		return err
	}
	if err := rs.dir.SetChild(ctx, directory.Join("users", entry.UserID, "uploaded", entry.ID), 1); err != nil {
		return err
	}
	if imageData != nil {
		if err := rs.blobs.Put(ctx, blob.RecipeImagePath(entry.UserID, entry.ID), imageData); err != nil {
			return err
		}
	}
	return nil
}

func (rs RecipeService) Get(ctx context.Context, recipeID string) (*mrecipe.RecipeEntry, error) {
	value, ok, err := rs.dir.GetChild(ctx, recipePath(recipeID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecipeNotFound
	}
	entry, err := trecord.RecordToRecipe(value)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (rs RecipeService) Remove(ctx context.Context, entry *mrecipe.RecipeEntry) error {
	if entry.ID == "" {
		return ErrRecipeNotFound
	}
	if err := rs.dir.RemoveChild(ctx, recipePath(entry.ID)); err != nil {
		return err
	}
	return rs.dir.RemoveChild(ctx, directory.Join("users", entry.UserID, "uploaded", entry.ID))
}

// Like marks recipeID as liked by userID. Liking twice is a no-op overwrite.
func (rs RecipeService) Like(ctx context.Context, userID, recipeID string) error {
	return rs.dir.SetChild(ctx, directory.Join(recipePath(recipeID), "likes", userID), 1)
}

func (rs RecipeService) Unlike(ctx context.Context, userID, recipeID string) error {
	return rs.dir.RemoveChild(ctx, directory.Join(recipePath(recipeID), "likes", userID))
}

func (rs RecipeService) Liked(ctx context.Context, userID, recipeID string) (bool, error) {
	_, ok, err := rs.dir.GetChild(ctx, directory.Join(recipePath(recipeID), "likes", userID))
	return ok, err
}

// Bookmark records the marker under the user and bumps the server-side
// counter. Both writes are at-most-once; a later feed refresh corrects any
// divergence.
func (rs RecipeService) Bookmark(ctx context.Context, userID, recipeID string) error {
	if err := rs.dir.SetChild(ctx, directory.Join("users", userID, "bookmarked", recipeID), 1); err != nil {
		return err
	}
	return rs.dir.IncrementCounter(ctx, directory.Join(recipePath(recipeID), "bookmarks"), 1)
}

func (rs RecipeService) Unbookmark(ctx context.Context, userID, recipeID string) error {
	if err := rs.dir.RemoveChild(ctx, directory.Join("users", userID, "bookmarked", recipeID)); err != nil {
		return err
	}
	return rs.dir.IncrementCounter(ctx, directory.Join(recipePath(recipeID), "bookmarks"), -1)
}

func (rs RecipeService) Bookmarked(ctx context.Context, userID, recipeID string) (bool, error) {
	_, ok, err := rs.dir.GetChild(ctx, directory.Join("users", userID, "bookmarked", recipeID))
	return ok, err
}

func (rs RecipeService) BookmarkedIDs(ctx context.Context, userID string) ([]string, error) {
	return rs.markerKeys(ctx, directory.Join("users", userID, "bookmarked"))
}

// AddComment appends a comment with a backend-assigned id and a server-side
// timestamp, returning the stored comment.
func (rs RecipeService) AddComment(ctx context.Context, userID, recipeID, content string) (*mcomment.Comment, error) {
	if isBlank(content) {
		return nil, ErrBlankField
	}
	if _, err := rs.Get(ctx, recipeID); err != nil {
		return nil, err
	}
	comment := mcomment.Comment{
		ID:       rs.dir.NewChildID(),
		UserID:   userID,
		DateTime: time.Now().Format(time.RFC3339),
		Content:  content,
	}
	record, err := trecord.CommentToRecord(comment)
	if err != nil {
		return nil, err
	}
	path := directory.Join(recipePath(recipeID), "comments", comment.ID)
	if err := rs.dir.SetChild(ctx, path, record); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (rs RecipeService) UploadedIDs(ctx context.Context, userID string) ([]string, error) {
	return rs.markerKeys(ctx, directory.Join("users", userID, "uploaded"))
}

// UploadedEntries resolves every entry uploaded by userID, one read per id
// joined via errgroup. A single failed read fails the whole batch.
func (rs RecipeService) UploadedEntries(ctx context.Context, userID string) ([]mrecipe.RecipeEntry, error) {
	ids, err := rs.UploadedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]mrecipe.RecipeEntry, 0, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveParallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			entry, err := rs.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("srecipe: resolving uploaded entry %q: %w", id, err)
			}
			mu.Lock()
			entries = append(entries, *entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (rs RecipeService) RecipeImage(ctx context.Context, entry mrecipe.RecipeEntry) ([]byte, error) {
	if entry.ID == "" {
		return nil, ErrRecipeNotFound
	}
	return rs.blobs.Get(ctx, blob.RecipeImagePath(entry.UserID, entry.ID))
}

func (rs RecipeService) markerKeys(ctx context.Context, path string) ([]string, error) {
	children, err := rs.dir.GetCollection(ctx, path)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(children))
	for key := range children {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
