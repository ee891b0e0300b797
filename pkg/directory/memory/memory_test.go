package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/directory/memory"
)

func recvEvent(t *testing.T, ch <-chan directory.ChildEvent) directory.ChildEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for child event")
		return directory.ChildEvent{}
	}
}

func TestSetAndGetChild(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	require.NoError(t, store.SetChild(ctx, "users/u1/username", "alice"))

	value, ok, err := store.GetChild(ctx, "users/u1/username")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", value)

	subtree, ok, err := store.GetChild(ctx, "users/u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]any{"username": "alice"}, subtree)

	_, ok, err = store.GetChild(ctx, "users/u2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetChildRejectsRoot(t *testing.T) {
	store := memory.New()
	defer store.Close()
	require.Error(t, store.SetChild(context.Background(), "/", map[string]any{}))
}

func TestGetChildReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	require.NoError(t, store.SetChild(ctx, "users/u1", map[string]any{"username": "alice"}))

	value, _, err := store.GetChild(ctx, "users/u1")
	require.NoError(t, err)
	value.(map[string]any)["username"] = "mallory"

	again, _, err := store.GetChild(ctx, "users/u1")
	require.NoError(t, err)
	require.Equal(t, "alice", again.(map[string]any)["username"])
}

func TestGetCollection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	children, err := store.GetCollection(ctx, "recipes")
	require.NoError(t, err)
	require.Empty(t, children)

	require.NoError(t, store.SetChild(ctx, "recipes/r1", map[string]any{"name": "soup"}))
	require.NoError(t, store.SetChild(ctx, "recipes/r2", map[string]any{"name": "stew"}))

	children, err = store.GetCollection(ctx, "recipes")
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "soup", children["r1"].(map[string]any)["name"])

	// A leaf is not a collection.
	require.NoError(t, store.SetChild(ctx, "counter", 1))
	_, err = store.GetCollection(ctx, "counter")
	require.Error(t, err)
}

func TestRemoveChildPrunesEmptyParents(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	require.NoError(t, store.SetChild(ctx, "users/u1/follows/u2", 1))
	require.NoError(t, store.RemoveChild(ctx, "users/u1/follows/u2"))

	_, ok, err := store.GetChild(ctx, "users/u1")
	require.NoError(t, err)
	require.False(t, ok)

	// Removing an absent path is not an error.
	require.NoError(t, store.RemoveChild(ctx, "users/u9"))
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	require.NoError(t, store.IncrementCounter(ctx, "recipes/r1/bookmarks", 3))
	value, ok, err := store.GetChild(ctx, "recipes/r1/bookmarks")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, value)

	require.NoError(t, store.IncrementCounter(ctx, "recipes/r1/bookmarks", -1))
	value, _, err = store.GetChild(ctx, "recipes/r1/bookmarks")
	require.NoError(t, err)
	require.EqualValues(t, 2, value)

	require.NoError(t, store.SetChild(ctx, "recipes/r1/name", "soup"))
	require.Error(t, store.IncrementCounter(ctx, "recipes/r1/name", 1))
}

func TestChildEventLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	events, err := store.Subscribe(ctx, "recipes")
	require.NoError(t, err)

	require.NoError(t, store.SetChild(ctx, "recipes/r1", map[string]any{"name": "soup"}))
	evt := recvEvent(t, events)
	require.Equal(t, directory.ChildAdded, evt.Type)
	require.Equal(t, "recipes", evt.Path)
	require.Equal(t, "r1", evt.Key)
	require.Equal(t, "soup", evt.Value.(map[string]any)["name"])

	// A write below an existing child surfaces as a change of that child,
	// carrying its full post-mutation subtree.
	require.NoError(t, store.SetChild(ctx, "recipes/r1/likes/u1", 1))
	evt = recvEvent(t, events)
	require.Equal(t, directory.ChildChanged, evt.Type)
	require.Equal(t, "r1", evt.Key)
	require.Contains(t, evt.Value.(map[string]any), "likes")

	require.NoError(t, store.RemoveChild(ctx, "recipes/r1"))
	evt = recvEvent(t, events)
	require.Equal(t, directory.ChildRemoved, evt.Type)
	require.Equal(t, "r1", evt.Key)
	require.Nil(t, evt.Value)

	// Writes outside the subscribed parent stay silent.
	require.NoError(t, store.SetChild(ctx, "users/u1/username", "alice"))
	select {
	case evt := <-events:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeepWriteEmitsChildAdded(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	events, err := store.Subscribe(ctx, "recipes")
	require.NoError(t, err)

	require.NoError(t, store.SetChild(ctx, "recipes/r2/name", "stew"))
	evt := recvEvent(t, events)
	require.Equal(t, directory.ChildAdded, evt.Type)
	require.Equal(t, "r2", evt.Key)
}

func TestUnsubscribeAllClosesChannels(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	events, err := store.Subscribe(ctx, "recipes")
	require.NoError(t, err)

	store.UnsubscribeAll("recipes")
	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestCloseRejectsOperations(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Close()

	_, _, err := store.GetChild(ctx, "users/u1")
	require.ErrorIs(t, err, directory.ErrClosed)
	require.ErrorIs(t, store.SetChild(ctx, "users/u1", 1), directory.ErrClosed)
	require.ErrorIs(t, store.RemoveChild(ctx, "users/u1"), directory.ErrClosed)
}
