package sqlitedir_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/directory/sqlitedir"
	"github.com/platefeed/server/pkg/model/mrecipe"
	"github.com/platefeed/server/pkg/translate/trecord"
)

func openStore(t *testing.T) *sqlitedir.Store {
	t.Helper()
	store, err := sqlitedir.Open(context.Background(), filepath.Join(t.TempDir(), "dir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLeafRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.SetChild(ctx, "users/u1/username", "alice"))

	value, ok, err := store.GetChild(ctx, "users/u1/username")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", value)

	_, ok, err = store.GetChild(ctx, "users/u2/username")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSubtreeReassembly(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	entry := mrecipe.RecipeEntry{
		ID:          "r1",
		Name:        "Shakshuka",
		UserID:      "u1",
		Description: "Eggs in tomato sauce",
		Ingredients: []string{"eggs", "tomatoes"},
		Directions:  []string{"simmer", "crack", "cover"},
		Likes:       map[string]int{"u2": 1},
		Bookmarks:   2,
		DateTime:    "2026-01-15T10:00:00Z",
	}
	record, err := trecord.RecipeToRecord(entry)
	require.NoError(t, err)
	require.NoError(t, store.SetChild(ctx, "recipes/r1", record))

	value, ok, err := store.GetChild(ctx, "recipes/r1")
	require.NoError(t, err)
	require.True(t, ok)

	decoded, err := trecord.RecordToRecipe(value)
	require.NoError(t, err)
	require.Equal(t, entry.Name, decoded.Name)
	require.Equal(t, entry.Ingredients, decoded.Ingredients)
	require.Equal(t, entry.Likes, decoded.Likes)
	require.Equal(t, entry.Bookmarks, decoded.Bookmarks)
}

func TestSetChildReplacesSubtree(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.SetChild(ctx, "recipes/r1", map[string]any{
		"name":  "soup",
		"likes": map[string]any{"u1": 1},
	}))
	require.NoError(t, store.SetChild(ctx, "recipes/r1", map[string]any{"name": "stew"}))

	value, ok, err := store.GetChild(ctx, "recipes/r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]any{"name": "stew"}, value)
}

func TestGetCollectionAssemblesChildren(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	children, err := store.GetCollection(ctx, "recipes")
	require.NoError(t, err)
	require.Empty(t, children)

	require.NoError(t, store.SetChild(ctx, "recipes/r1/name", "soup"))
	require.NoError(t, store.SetChild(ctx, "recipes/r1/likes/u1", 1))
	require.NoError(t, store.SetChild(ctx, "recipes/r2/name", "stew"))

	children, err = store.GetCollection(ctx, "recipes")
	require.NoError(t, err)
	require.Len(t, children, 2)

	r1 := children["r1"].(map[string]any)
	require.Equal(t, "soup", r1["name"])
	require.Contains(t, r1, "likes")
}

func TestRemoveChildDeletesSubtree(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.SetChild(ctx, "recipes/r1/name", "soup"))
	require.NoError(t, store.SetChild(ctx, "recipes/r1/likes/u1", 1))
	require.NoError(t, store.RemoveChild(ctx, "recipes/r1"))

	_, ok, err := store.GetChild(ctx, "recipes/r1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.RemoveChild(ctx, "recipes/r9"))
}

func TestPrefixScanDoesNotLeakSiblings(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	// "recipes0" sorts directly after "recipes/" and must not be swept up
	// by the subtree range scan.
	require.NoError(t, store.SetChild(ctx, "recipes/r1", 1))
	require.NoError(t, store.SetChild(ctx, "recipes0/r2", 2))

	children, err := store.GetCollection(ctx, "recipes")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Contains(t, children, "r1")
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.IncrementCounter(ctx, "recipes/r1/bookmarks", 1))
	require.NoError(t, store.IncrementCounter(ctx, "recipes/r1/bookmarks", 1))
	require.NoError(t, store.IncrementCounter(ctx, "recipes/r1/bookmarks", -1))

	value, ok, err := store.GetChild(ctx, "recipes/r1/bookmarks")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, value)
}

func TestChildEvents(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	events, err := store.Subscribe(ctx, "recipes")
	require.NoError(t, err)

	recv := func() directory.ChildEvent {
		t.Helper()
		select {
		case evt, ok := <-events:
			require.True(t, ok, "channel closed before event arrived")
			return evt
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for child event")
			return directory.ChildEvent{}
		}
	}

	require.NoError(t, store.SetChild(ctx, "recipes/r1/name", "soup"))
	evt := recv()
	require.Equal(t, directory.ChildAdded, evt.Type)
	require.Equal(t, "r1", evt.Key)

	require.NoError(t, store.SetChild(ctx, "recipes/r1/likes/u1", 1))
	evt = recv()
	require.Equal(t, directory.ChildChanged, evt.Type)
	require.Equal(t, "r1", evt.Key)

	require.NoError(t, store.RemoveChild(ctx, "recipes/r1"))
	evt = recv()
	require.Equal(t, directory.ChildRemoved, evt.Type)
	require.Nil(t, evt.Value)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dir.db")

	store, err := sqlitedir.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SetChild(ctx, "users/u1/username", "alice"))
	require.NoError(t, store.Close())

	reopened, err := sqlitedir.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.GetChild(ctx, "users/u1/username")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", value)
}
