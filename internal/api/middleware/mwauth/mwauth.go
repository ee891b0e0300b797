package mwauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/platefeed/server/internal/api"
	"github.com/platefeed/server/pkg/stoken"
)

type ContextKey int

const UserIDKeyCtx ContextKey = iota

var ErrNoUserInContext = errors.New("mwauth: no authenticated user in context")

// CreateAuthedContext attaches the authenticated user id to the context.
func CreateAuthedContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKeyCtx, userID)
}

// GetContextUserID returns the authenticated user id set by the middleware.
func GetContextUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKeyCtx).(string)
	if !ok || userID == "" {
		return "", ErrNoUserInContext
	}
	return userID, nil
}

// New returns middleware that validates the Bearer token and stores the
// subject user id in the request context.
func New(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headerValue := r.Header.Get(stoken.TokenHeaderKey)
			if headerValue == "" {
				api.WriteError(w, http.StatusUnauthorized, errors.New("no token provided"))
				return
			}
			tokenRaw := strings.Split(headerValue, "Bearer ")
			if len(tokenRaw) != 2 {
				api.WriteError(w, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}
			claims, err := stoken.Validate(tokenRaw[1], stoken.AccessToken, secret)
			if err != nil {
				logger.ErrorContext(r.Context(), "validating token failed", "error", err)
				api.WriteError(w, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(CreateAuthedContext(r.Context(), claims.Subject)))
		})
	}
}
