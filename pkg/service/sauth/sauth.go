// Package sauth handles registration and sign-in. Passwords are stored as
// bcrypt hashes in the user's profile record; sessions are stateless JWTs.
package sauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platefeed/server/pkg/blob"
	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/model/muser"
	"github.com/platefeed/server/pkg/service/suser"
	"github.com/platefeed/server/pkg/stoken"
)

var (
	ErrInvalidCredentials = errors.New("sauth: invalid email or password")
	ErrEmailTaken         = errors.New("sauth: email already registered")
	ErrBlankField         = errors.New("sauth: blank text field")
)

type AuthService struct {
	dir      directory.Directory
	users    suser.UserService
	blobs    blob.Store
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger
}

func New(dir directory.Directory, users suser.UserService, blobs blob.Store,
	secret []byte, tokenTTL time.Duration, logger *slog.Logger) AuthService {
	return AuthService{
		dir:      dir,
		users:    users,
		blobs:    blobs,
		secret:   secret,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Register creates a new account with an optional profile picture and returns
// the stored profile.
func (as AuthService) Register(ctx context.Context, username, email, password string, profilePicture []byte) (*muser.User, error) {
	if isBlank(username) || isBlank(email) || isBlank(password) {
		return nil, ErrBlankField
	}
	if _, err := as.findByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrInvalidCredentials) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := muser.User{
		ID:           as.dir.NewChildID(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := as.users.CreateProfile(ctx, user); err != nil {
		return nil, err
	}
	if profilePicture != nil {
		if err := as.blobs.Put(ctx, blob.ProfileImagePath(user.ID), profilePicture); err != nil {
			as.logger.ErrorContext(ctx, "storing profile picture failed",
				"user_id", user.ID, "error", err)
		}
	}
	user.PasswordHash = ""
	return &user, nil
}

// SignIn verifies the credentials and mints an access token.
func (as AuthService) SignIn(ctx context.Context, email, password string) (string, *muser.User, error) {
	user, err := as.findByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := stoken.New(user.ID, stoken.AccessToken, as.tokenTTL, as.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sauth: minting token: %w", err)
	}
	user.PasswordHash = ""
	return token, user, nil
}

// findByEmail scans the users collection for a matching email leaf.
func (as AuthService) findByEmail(ctx context.Context, email string) (*muser.User, error) {
	users, err := as.dir.GetCollection(ctx, "users")
	if err != nil {
		return nil, err
	}
	for id, value := range users {
		tree, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if stored, ok := tree["email"].(string); !ok || stored != email {
			continue
		}
		user := &muser.User{ID: id, Email: email}
		if username, ok := tree["username"].(string); ok {
			user.Username = username
		}
		if hash, ok := tree["password"].(string); ok {
			user.PasswordHash = hash
		}
		return user, nil
	}
	return nil, ErrInvalidCredentials
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
