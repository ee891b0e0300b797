// Package rfollow exposes the social graph endpoints. Follow and unfollow
// also stage the corresponding feed additions and removals in the caller's
// feed cache.
package rfollow

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/platefeed/server/internal/api"
	"github.com/platefeed/server/internal/api/middleware/mwauth"
	"github.com/platefeed/server/pkg/feed"
	"github.com/platefeed/server/pkg/service/sfollow"
)

type Handler struct {
	follows sfollow.FollowService
	manager *feed.Manager
	logger  *slog.Logger
}

func New(follows sfollow.FollowService, manager *feed.Manager, logger *slog.Logger) *Handler {
	return &Handler{follows: follows, manager: manager, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("PUT /api/follows/{id}", authed(http.HandlerFunc(h.Follow)))
	mux.Handle("DELETE /api/follows/{id}", authed(http.HandlerFunc(h.Unfollow)))
	mux.Handle("GET /api/users/{id}/followers", authed(http.HandlerFunc(h.Followers)))
	mux.Handle("GET /api/users/{id}/following", authed(http.HandlerFunc(h.Following)))
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	otherID := r.PathValue("id")
	if err := h.follows.Follow(r.Context(), userID, otherID); err != nil {
		h.writeFollowError(w, r, err)
		return
	}
	if cache, ok := h.manager.Get(userID); ok {
		if err := cache.OnUserFollowed(r.Context(), otherID); err != nil {
			h.logger.ErrorContext(r.Context(), "staging followed user's entries failed",
				"followed_id", otherID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	otherID := r.PathValue("id")
	if err := h.follows.Unfollow(r.Context(), userID, otherID); err != nil {
		h.writeFollowError(w, r, err)
		return
	}
	if cache, ok := h.manager.Get(userID); ok {
		if err := cache.OnUserUnfollowed(r.Context(), otherID); err != nil {
			h.logger.ErrorContext(r.Context(), "staging unfollowed user's removals failed",
				"unfollowed_id", otherID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Followers(w http.ResponseWriter, r *http.Request) {
	names, err := h.follows.FollowersMap(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolving followers failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, names)
}

func (h *Handler) Following(w http.ResponseWriter, r *http.Request) {
	names, err := h.follows.FollowingMap(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolving following failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, names)
}

func (h *Handler) writeFollowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sfollow.ErrAlreadyFollowing),
		errors.Is(err, sfollow.ErrNotFollowing),
		errors.Is(err, sfollow.ErrSelfFollow):
		api.WriteError(w, http.StatusConflict, err)
	default:
		h.logger.ErrorContext(r.Context(), "follow operation failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
	}
}
