// Package feed maintains the eventually-consistent local view of the recipe
// collection for one signed-in user. Realtime change events are staged in
// pending buffers and only applied to the visible home feed when the user
// explicitly refreshes, so an actively viewed feed never shifts underneath
// the viewer.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/model/mrecipe"
	"github.com/platefeed/server/pkg/serialdispatch"
	"github.com/platefeed/server/pkg/service/sfollow"
	"github.com/platefeed/server/pkg/service/srecipe"
	"github.com/platefeed/server/pkg/translate/trecord"
)

const recipesPath = "recipes"

var (
	ErrAlreadyLaunched = errors.New("feed: cache already launched")
	ErrNotLaunched     = errors.New("feed: cache not launched")
)

// readRetries bounds retries of the initial reads; transient transport
// failures back off and retry, then leave the cache in last-known-good state.
const readRetries = 3

// Cache is the feed synchronization cache. All mutable state is owned by the
// cache's serial dispatcher: event handlers, completion callbacks, and
// reconciliation all run as dispatched tasks, so no field needs a lock.
type Cache struct {
	dir     directory.Directory
	follows sfollow.FollowService
	recipes srecipe.RecipeService
	userID  string
	logger  *slog.Logger

	dispatch *serialdispatch.Dispatcher

	// Owner-context state below; touch only from dispatched tasks.
	launched      bool
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	allEntries            map[string]mrecipe.RecipeEntry
	homeFeed              map[string]mrecipe.RecipeEntry
	pendingAdd            []mrecipe.RecipeEntry
	pendingRemove         map[string]struct{}
	pendingChange         map[string]struct{}
	bookmarkFeed          []mrecipe.RecipeEntry
	pendingBookmarkRemove []mrecipe.RecipeEntry
}

func New(dir directory.Directory, follows sfollow.FollowService, recipes srecipe.RecipeService,
	userID string, logger *slog.Logger) *Cache {
	c := &Cache{
		dir:      dir,
		follows:  follows,
		recipes:  recipes,
		userID:   userID,
		logger:   logger,
		dispatch: serialdispatch.New(256),
	}
	c.resetState()
	return c
}

// Launch subscribes to the recipe collection's change events and kicks off
// the initial home-feed and bookmark-feed reads. Launching an already
// launched cache reports an error and changes nothing.
func (c *Cache) Launch(ctx context.Context) error {
	return c.dispatch.Dispatch(func() error {
		if c.launched {
			c.logger.Error("launching feed cache: already launched", "user_id", c.userID)
			return ErrAlreadyLaunched
		}

		sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		events, err := c.dir.Subscribe(sessionCtx, recipesPath)
		if err != nil {
			cancel()
			return err
		}

		c.resetState()
		c.sessionCtx = sessionCtx
		c.sessionCancel = cancel
		c.launched = true

		go c.pumpEvents(sessionCtx, events)
		go c.loadInitialSnapshot(sessionCtx)
		go c.loadBookmarkFeed(sessionCtx)
		return nil
	})
}

// Kill unsubscribes, cancels in-flight session work, and discards all cached
// state. Killing a cache that is not launched reports an error and is a no-op.
func (c *Cache) Kill() error {
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			c.logger.Error("killing feed cache: not launched", "user_id", c.userID)
			return ErrNotLaunched
		}
		// Cancelling the session context detaches this cache's
		// subscription without touching other sessions on the path.
		c.sessionCancel()
		c.launched = false
		c.sessionCtx = nil
		c.sessionCancel = nil
		c.resetState()
		return nil
	})
}

// Close tears the cache down for good. Safe to call whether or not launched.
func (c *Cache) Close() {
	_ = c.Kill()
	c.dispatch.Close()
}

// RefreshHomeFeed applies the staged changes to the visible feed in a fixed
// order: changed entries first, then additions, then removals, so a removal
// staged in the same batch always wins.
func (c *Cache) RefreshHomeFeed() error {
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			return ErrNotLaunched
		}

		for id := range c.pendingChange {
			entry, ok := c.allEntries[id]
			if !ok {
				// Removed since the change was staged; the removal
				// entry in pendingRemove settles it below.
				continue
			}
			c.homeFeed[id] = entry
		}
		c.pendingChange = make(map[string]struct{})

		for _, entry := range c.pendingAdd {
			if entry.ID == "" {
				c.logger.Error("skipping staged entry with no assigned id", "name", entry.Name)
				continue
			}
			c.homeFeed[entry.ID] = entry
		}
		c.pendingAdd = nil

		for id := range c.pendingRemove {
			if _, ok := c.homeFeed[id]; !ok {
				c.logger.Debug("staged removal not present in home feed", "recipe_id", id)
				continue
			}
			delete(c.homeFeed, id)
		}
		c.pendingRemove = make(map[string]struct{})
		return nil
	})
}

// RefreshBookmarkFeed drops every entry staged for bookmark removal from the
// bookmark feed.
func (c *Cache) RefreshBookmarkFeed() error {
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			return ErrNotLaunched
		}
		for _, staged := range c.pendingBookmarkRemove {
			kept := c.bookmarkFeed[:0]
			for _, entry := range c.bookmarkFeed {
				if entry.ID != staged.ID {
					kept = append(kept, entry)
				}
			}
			c.bookmarkFeed = kept
		}
		c.pendingBookmarkRemove = nil
		return nil
	})
}

// OnUserFollowed fetches every entry uploaded by the newly followed user and
// stages them for addition on the next home-feed refresh.
func (c *Cache) OnUserFollowed(ctx context.Context, followedUserID string) error {
	entries, err := c.recipes.UploadedEntries(ctx, followedUserID)
	if err != nil {
		c.logger.Error("fetching entries for followed user failed",
			"user_id", followedUserID, "error", err)
		return err
	}
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			return ErrNotLaunched
		}
		c.pendingAdd = append(c.pendingAdd, entries...)
		return nil
	})
}

// OnUserUnfollowed fetches the ids uploaded by the unfollowed user and stages
// them all for removal on the next home-feed refresh.
func (c *Cache) OnUserUnfollowed(ctx context.Context, unfollowedUserID string) error {
	ids, err := c.recipes.UploadedIDs(ctx, unfollowedUserID)
	if err != nil {
		c.logger.Error("fetching uploaded ids for unfollowed user failed",
			"user_id", unfollowedUserID, "error", err)
		return err
	}
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			return ErrNotLaunched
		}
		for _, id := range ids {
			c.pendingRemove[id] = struct{}{}
		}
		return nil
	})
}

// AddBookmark appends immediately to the bookmark feed; bookmarking is
// optimistic local state, not staged.
func (c *Cache) AddBookmark(entry mrecipe.RecipeEntry) error {
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			return ErrNotLaunched
		}
		c.bookmarkFeed = append(c.bookmarkFeed, entry)
		return nil
	})
}

// StageBookmarkRemoval queues an unbookmarked entry for removal on the next
// bookmark refresh instead of mutating the feed directly; an unbookmark
// response can race a concurrent append otherwise.
func (c *Cache) StageBookmarkRemoval(entry mrecipe.RecipeEntry) error {
	return c.dispatch.Dispatch(func() error {
		if !c.launched {
			return ErrNotLaunched
		}
		c.pendingBookmarkRemove = append(c.pendingBookmarkRemove, entry)
		return nil
	})
}

// Launched reports the lifecycle flag.
func (c *Cache) Launched() bool {
	var launched bool
	_ = c.dispatch.Dispatch(func() error {
		launched = c.launched
		return nil
	})
	return launched
}

// HomeFeed returns a copy of the visible feed.
func (c *Cache) HomeFeed() map[string]mrecipe.RecipeEntry {
	var out map[string]mrecipe.RecipeEntry
	_ = c.dispatch.Dispatch(func() error {
		out = copyEntryMap(c.homeFeed)
		return nil
	})
	return out
}

// AllEntries returns a copy of the full unfiltered entry universe.
func (c *Cache) AllEntries() map[string]mrecipe.RecipeEntry {
	var out map[string]mrecipe.RecipeEntry
	_ = c.dispatch.Dispatch(func() error {
		out = copyEntryMap(c.allEntries)
		return nil
	})
	return out
}

// BookmarkFeed returns a copy of the bookmark feed in load/append order.
func (c *Cache) BookmarkFeed() []mrecipe.RecipeEntry {
	var out []mrecipe.RecipeEntry
	_ = c.dispatch.Dispatch(func() error {
		out = make([]mrecipe.RecipeEntry, len(c.bookmarkFeed))
		for i, entry := range c.bookmarkFeed {
			out[i] = entry.Clone()
		}
		return nil
	})
	return out
}

// PendingCounts reports how many staged additions, removals, and changes are
// waiting for the next refresh.
func (c *Cache) PendingCounts() (adds, removes, changes int) {
	_ = c.dispatch.Dispatch(func() error {
		adds = len(c.pendingAdd)
		removes = len(c.pendingRemove)
		changes = len(c.pendingChange)
		return nil
	})
	return adds, removes, changes
}

func (c *Cache) resetState() {
	c.allEntries = make(map[string]mrecipe.RecipeEntry)
	c.homeFeed = make(map[string]mrecipe.RecipeEntry)
	c.pendingAdd = nil
	c.pendingRemove = make(map[string]struct{})
	c.pendingChange = make(map[string]struct{})
	c.bookmarkFeed = nil
	c.pendingBookmarkRemove = nil
}

// pumpEvents forwards subscription events onto the owner context until the
// channel closes.
func (c *Cache) pumpEvents(sessionCtx context.Context, events <-chan directory.ChildEvent) {
	for evt := range events {
		evt := evt
		var err error
		switch evt.Type {
		case directory.ChildAdded:
			err = c.handleAdded(sessionCtx, evt)
		case directory.ChildRemoved:
			err = c.handleRemoved(sessionCtx, evt)
		case directory.ChildChanged:
			err = c.handleChanged(sessionCtx, evt)
		}
		if err != nil {
			return
		}
	}
}

// handleAdded always records the entry in allEntries, then evaluates the
// follow-filter independently for this entry; passing entries are staged for
// addition. The visible feed is never mutated here.
func (c *Cache) handleAdded(sessionCtx context.Context, evt directory.ChildEvent) error {
	entry, err := trecord.RecordToRecipe(evt.Value)
	if err != nil {
		c.logger.Error("dropping malformed added record", "recipe_id", evt.Key, "error", err)
		return nil
	}
	if err := c.dispatchSession(sessionCtx, func() {
		c.allEntries[entry.ID] = entry
	}); err != nil {
		return err
	}

	go func() {
		if !c.passesFollowFilter(sessionCtx, entry) {
			return
		}
		_ = c.dispatchSession(sessionCtx, func() {
			c.pendingAdd = append(c.pendingAdd, entry)
		})
	}()
	return nil
}

// handleRemoved stages the removal unconditionally; the entry may never have
// been visible and that is fine.
func (c *Cache) handleRemoved(sessionCtx context.Context, evt directory.ChildEvent) error {
	return c.dispatchSession(sessionCtx, func() {
		delete(c.allEntries, evt.Key)
		c.pendingRemove[evt.Key] = struct{}{}
	})
}

// handleChanged marks the id dirty and refreshes the cached copy when the new
// value parses; a malformed payload keeps the last good copy.
func (c *Cache) handleChanged(sessionCtx context.Context, evt directory.ChildEvent) error {
	entry, err := trecord.RecordToRecipe(evt.Value)
	if err != nil {
		c.logger.Error("dropping malformed changed record", "recipe_id", evt.Key, "error", err)
		entry = mrecipe.RecipeEntry{}
	}
	return c.dispatchSession(sessionCtx, func() {
		c.pendingChange[evt.Key] = struct{}{}
		if entry.ID != "" {
			c.allEntries[entry.ID] = entry
		}
	})
}

// loadInitialSnapshot performs the full collection read: every parseable
// entry lands in allEntries, and each entry is independently follow-checked
// into the visible feed.
func (c *Cache) loadInitialSnapshot(sessionCtx context.Context) {
	var snapshot map[string]any
	err := withRetry(sessionCtx, readRetries, func() error {
		var err error
		snapshot, err = c.dir.GetCollection(sessionCtx, recipesPath)
		return err
	})
	if err != nil {
		c.logger.Error("initial feed read failed, keeping last-known-good state", "error", err)
		return
	}

	for id, value := range snapshot {
		entry, err := trecord.RecordToRecipe(value)
		if err != nil {
			c.logger.Error("dropping malformed record in snapshot", "recipe_id", id, "error", err)
			continue
		}
		if err := c.dispatchSession(sessionCtx, func() {
			c.allEntries[entry.ID] = entry
		}); err != nil {
			return
		}

		go func() {
			if !c.passesFollowFilter(sessionCtx, entry) {
				return
			}
			_ = c.dispatchSession(sessionCtx, func() {
				c.homeFeed[entry.ID] = entry
			})
		}()
	}
}

// loadBookmarkFeed resolves the user's bookmark markers to full entries.
func (c *Cache) loadBookmarkFeed(sessionCtx context.Context) {
	var ids []string
	err := withRetry(sessionCtx, readRetries, func() error {
		var err error
		ids, err = c.recipes.BookmarkedIDs(sessionCtx, c.userID)
		return err
	})
	if err != nil {
		c.logger.Error("bookmark feed read failed", "error", err)
		return
	}

	for _, id := range ids {
		entry, err := c.recipes.Get(sessionCtx, id)
		if err != nil {
			c.logger.Error("resolving bookmarked entry failed", "recipe_id", id, "error", err)
			continue
		}
		resolved := *entry
		if err := c.dispatchSession(sessionCtx, func() {
			c.bookmarkFeed = append(c.bookmarkFeed, resolved)
		}); err != nil {
			return
		}
	}
}

// passesFollowFilter evaluates "owner is followed by the viewer, or owner is
// the viewer". Errors fail closed: the entry just stays out of the feed.
func (c *Cache) passesFollowFilter(sessionCtx context.Context, entry mrecipe.RecipeEntry) bool {
	if entry.UserID == c.userID {
		return true
	}
	following, err := c.follows.IsFollowing(sessionCtx, c.userID, entry.UserID)
	if err != nil {
		if sessionCtx.Err() == nil {
			c.logger.Error("follow check failed", "owner_id", entry.UserID, "error", err)
		}
		return false
	}
	return following
}

// dispatchSession runs fn on the owner context, skipping it when the session
// it belongs to has been killed. Late completion callbacks from a dead
// session must not resurrect state.
func (c *Cache) dispatchSession(sessionCtx context.Context, fn func()) error {
	return c.dispatch.DispatchAsync(func() error {
		if !c.launched || c.sessionCtx != sessionCtx {
			return nil
		}
		fn()
		return nil
	})
}

func withRetry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	backoff := 100 * time.Millisecond
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
	return err
}

func copyEntryMap(in map[string]mrecipe.RecipeEntry) map[string]mrecipe.RecipeEntry {
	out := make(map[string]mrecipe.RecipeEntry, len(in))
	for id, entry := range in {
		out[id] = entry.Clone()
	}
	return out
}
