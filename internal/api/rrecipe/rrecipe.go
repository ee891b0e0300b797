// Package rrecipe exposes recipe CRUD, likes, bookmarks, and comments.
package rrecipe

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/platefeed/server/internal/api"
	"github.com/platefeed/server/internal/api/middleware/mwauth"
	"github.com/platefeed/server/pkg/blob"
	"github.com/platefeed/server/pkg/feed"
	"github.com/platefeed/server/pkg/model/mrecipe"
	"github.com/platefeed/server/pkg/service/srecipe"
	"github.com/platefeed/server/pkg/translate/trecord"
)

type Handler struct {
	recipes srecipe.RecipeService
	manager *feed.Manager
	logger  *slog.Logger
}

func New(recipes srecipe.RecipeService, manager *feed.Manager, logger *slog.Logger) *Handler {
	return &Handler{recipes: recipes, manager: manager, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /api/recipes", authed(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/recipes/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("GET /api/recipes/{id}/image", authed(http.HandlerFunc(h.Image)))
	mux.Handle("PUT /api/recipes/{id}/like", authed(http.HandlerFunc(h.Like)))
	mux.Handle("DELETE /api/recipes/{id}/like", authed(http.HandlerFunc(h.Unlike)))
	mux.Handle("PUT /api/recipes/{id}/bookmark", authed(http.HandlerFunc(h.Bookmark)))
	mux.Handle("DELETE /api/recipes/{id}/bookmark", authed(http.HandlerFunc(h.Unbookmark)))
	mux.Handle("POST /api/recipes/{id}/comments", authed(http.HandlerFunc(h.Comment)))
	mux.Handle("GET /api/users/{id}/recipes", authed(http.HandlerFunc(h.Uploaded)))
}

type createRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Ingredients []string `json:"ingredients"`
	Directions  []string `json:"directions"`
	Image       []byte   `json:"image,omitempty"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	var req createRequest
	if err := api.ReadJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	entry := mrecipe.RecipeEntry{
		Name:        req.Name,
		UserID:      userID,
		Description: req.Description,
		Ingredients: req.Ingredients,
		Directions:  req.Directions,
	}
	if err := h.recipes.Add(r.Context(), &entry, req.Image); err != nil {
		if errors.Is(err, srecipe.ErrBlankField) {
			api.WriteError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "creating recipe failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	record, err := trecord.RecipeToRecord(entry)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.recipes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeRecipeError(w, r, err)
		return
	}
	record, err := trecord.RecipeToRecord(*entry)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	entry, err := h.recipes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeRecipeError(w, r, err)
		return
	}
	data, err := h.recipes.RecipeImage(r.Context(), *entry)
	if errors.Is(err, blob.ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.likeAction(w, r, h.recipes.Like)
}

func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.likeAction(w, r, h.recipes.Unlike)
}

func (h *Handler) likeAction(w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, userID, recipeID string) error) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	recipeID := r.PathValue("id")
	if _, err := h.recipes.Get(r.Context(), recipeID); err != nil {
		h.writeRecipeError(w, r, err)
		return
	}
	if err := action(r.Context(), userID, recipeID); err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Bookmark(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	recipeID := r.PathValue("id")
	entry, err := h.recipes.Get(r.Context(), recipeID)
	if err != nil {
		h.writeRecipeError(w, r, err)
		return
	}
	if err := h.recipes.Bookmark(r.Context(), userID, recipeID); err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if cache, ok := h.manager.Get(userID); ok {
		if err := cache.AddBookmark(*entry); err != nil {
			h.logger.ErrorContext(r.Context(), "appending bookmark to feed failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Unbookmark(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	recipeID := r.PathValue("id")
	entry, err := h.recipes.Get(r.Context(), recipeID)
	if err != nil {
		h.writeRecipeError(w, r, err)
		return
	}
	if err := h.recipes.Unbookmark(r.Context(), userID, recipeID); err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if cache, ok := h.manager.Get(userID); ok {
		if err := cache.StageBookmarkRemoval(*entry); err != nil {
			h.logger.ErrorContext(r.Context(), "staging bookmark removal failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type commentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) Comment(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	var req commentRequest
	if err := api.ReadJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	comment, err := h.recipes.AddComment(r.Context(), userID, r.PathValue("id"), req.Content)
	if err != nil {
		if errors.Is(err, srecipe.ErrBlankField) {
			api.WriteError(w, http.StatusBadRequest, err)
			return
		}
		h.writeRecipeError(w, r, err)
		return
	}
	record, err := trecord.CommentToRecord(*comment)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) Uploaded(w http.ResponseWriter, r *http.Request) {
	entries, err := h.recipes.UploadedEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	records := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		record, err := trecord.RecipeToRecord(entry)
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	api.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) writeRecipeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, srecipe.ErrRecipeNotFound) {
		api.WriteError(w, http.StatusNotFound, err)
		return
	}
	h.logger.ErrorContext(r.Context(), "recipe operation failed", "error", err)
	api.WriteError(w, http.StatusInternalServerError, err)
}
