// Package rauth exposes registration and session endpoints. Logging in opens
// the user's feed cache; logging out kills it.
package rauth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/platefeed/server/internal/api"
	"github.com/platefeed/server/internal/api/middleware/mwauth"
	"github.com/platefeed/server/pkg/feed"
	"github.com/platefeed/server/pkg/model/muser"
	"github.com/platefeed/server/pkg/service/sauth"
)

type Handler struct {
	auth    sauth.AuthService
	manager *feed.Manager
	logger  *slog.Logger
}

func New(auth sauth.AuthService, manager *feed.Manager, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, manager: manager, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.Handle("POST /api/auth/logout", authed(http.HandlerFunc(h.Logout)))
}

type registerRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	ProfilePicture []byte `json:"profile_picture,omitempty"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUserResponse(user *muser.User) userResponse {
	return userResponse{ID: user.ID, Username: user.Username, Email: user.Email}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := api.ReadJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password, req.ProfilePicture)
	switch {
	case errors.Is(err, sauth.ErrBlankField), errors.Is(err, sauth.ErrEmailTaken):
		api.WriteError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "registration failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.ReadJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	token, user, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, sauth.ErrInvalidCredentials):
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "sign-in failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := h.manager.Open(r.Context(), user.ID); err != nil {
		h.logger.ErrorContext(r.Context(), "opening feed cache failed",
			"user_id", user.ID, "error", err)
		api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(user)})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := mwauth.GetContextUserID(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, err)
		return
	}
	h.manager.Close(userID)
	w.WriteHeader(http.StatusNoContent)
}
