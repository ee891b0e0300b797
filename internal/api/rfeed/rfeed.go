// Package rfeed exposes the home feed, bookmark feed, and explore search.
// Feed reads serve the cached snapshot; refresh endpoints apply the staged
// changes, mirroring the pull-to-refresh interaction.
package rfeed

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/platefeed/server/internal/api"
	"github.com/platefeed/server/internal/api/middleware/mwauth"
	"github.com/platefeed/server/pkg/feed"
	"github.com/platefeed/server/pkg/model/mrecipe"
	"github.com/platefeed/server/pkg/search"
	"github.com/platefeed/server/pkg/translate/trecord"
)

var errNoSession = errors.New("rfeed: no open feed session, sign in first")

type Handler struct {
	manager *feed.Manager
	logger  *slog.Logger
}

func New(manager *feed.Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("GET /api/feed/home", authed(http.HandlerFunc(h.Home)))
	mux.Handle("POST /api/feed/home/refresh", authed(http.HandlerFunc(h.RefreshHome)))
	mux.Handle("GET /api/feed/bookmarks", authed(http.HandlerFunc(h.Bookmarks)))
	mux.Handle("POST /api/feed/bookmarks/refresh", authed(http.HandlerFunc(h.RefreshBookmarks)))
	mux.Handle("GET /api/explore", authed(http.HandlerFunc(h.Explore)))
}

func (h *Handler) cache(w http.ResponseWriter, r *http.Request) (*feed.Cache, bool) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return nil, false
	}
	cache, ok := h.manager.Get(userID)
	if !ok {
		api.WriteError(w, http.StatusConflict, errNoSession)
		return nil, false
	}
	return cache, true
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, entriesToRecords(sortedEntries(cache.HomeFeed())))
}

func (h *Handler) RefreshHome(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	if err := cache.RefreshHomeFeed(); err != nil {
		api.WriteError(w, http.StatusConflict, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, entriesToRecords(sortedEntries(cache.HomeFeed())))
}

func (h *Handler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, entriesToRecords(cache.BookmarkFeed()))
}

func (h *Handler) RefreshBookmarks(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	if err := cache.RefreshBookmarkFeed(); err != nil {
		api.WriteError(w, http.StatusConflict, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, entriesToRecords(cache.BookmarkFeed()))
}

// Explore searches across every known entry, not just the followed feed.
func (h *Handler) Explore(w http.ResponseWriter, r *http.Request) {
	cache, ok := h.cache(w, r)
	if !ok {
		return
	}
	results := search.Entries(r.URL.Query().Get("q"), sortedEntries(cache.AllEntries()))
	api.WriteJSON(w, http.StatusOK, entriesToRecords(results))
}

// sortedEntries flattens a feed mapping newest-first for display.
func sortedEntries(entries map[string]mrecipe.RecipeEntry) []mrecipe.RecipeEntry {
	out := make([]mrecipe.RecipeEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func entriesToRecords(entries []mrecipe.RecipeEntry) []map[string]any {
	records := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		record, err := trecord.RecipeToRecord(entry)
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return records
}
