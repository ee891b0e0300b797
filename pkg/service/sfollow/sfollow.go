// Package sfollow is the social graph service: who follows whom, stored as
// presence markers under users/{id}/follows and users/{id}/followers.
package sfollow

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/service/suser"
)

var (
	ErrAlreadyFollowing = errors.New("sfollow: already following this user")
	ErrNotFollowing     = errors.New("sfollow: not following this user")
	ErrSelfFollow       = errors.New("sfollow: cannot follow yourself")
)

type FollowService struct {
	dir    directory.Directory
	users  suser.UserService
	logger *slog.Logger
}

func New(dir directory.Directory, users suser.UserService, logger *slog.Logger) FollowService {
	return FollowService{dir: dir, users: users, logger: logger}
}

func followsPath(userID, otherID string) string {
	return directory.Join("users", userID, "follows", otherID)
}

func followersPath(userID, followerID string) string {
	return directory.Join("users", userID, "followers", followerID)
}

// IsFollowing reports whether userID follows otherID.
func (fs FollowService) IsFollowing(ctx context.Context, userID, otherID string) (bool, error) {
	_, ok, err := fs.dir.GetChild(ctx, followsPath(userID, otherID))
	return ok, err
}

// Follow records userID following otherID by writing both sides of the edge.
func (fs FollowService) Follow(ctx context.Context, userID, otherID string) error {
	if userID == otherID {
		return ErrSelfFollow
	}
	following, err := fs.IsFollowing(ctx, userID, otherID)
	if err != nil {
		return err
	}
	if following {
		return ErrAlreadyFollowing
	}
	if err := fs.dir.SetChild(ctx, followersPath(otherID, userID), 1); err != nil {
		return err
	}
	return fs.dir.SetChild(ctx, followsPath(userID, otherID), 1)
}

// Unfollow removes both sides of the edge.
func (fs FollowService) Unfollow(ctx context.Context, userID, otherID string) error {
	following, err := fs.IsFollowing(ctx, userID, otherID)
	if err != nil {
		return err
	}
	if !following {
		return ErrNotFollowing
	}
	if err := fs.dir.RemoveChild(ctx, followersPath(otherID, userID)); err != nil {
		return err
	}
	return fs.dir.RemoveChild(ctx, followsPath(userID, otherID))
}

func (fs FollowService) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return fs.markerKeys(ctx, directory.Join("users", userID, "followers"))
}

func (fs FollowService) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return fs.markerKeys(ctx, directory.Join("users", userID, "follows"))
}

// FollowersMap resolves followers of userID to an id -> username map.
func (fs FollowService) FollowersMap(ctx context.Context, userID string) (map[string]string, error) {
	ids, err := fs.GetFollowerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return fs.users.UsernameMap(ctx, ids)
}

// FollowingMap resolves users that userID follows to an id -> username map.
func (fs FollowService) FollowingMap(ctx context.Context, userID string) (map[string]string, error) {
	ids, err := fs.GetFollowingIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return fs.users.UsernameMap(ctx, ids)
}

func (fs FollowService) markerKeys(ctx context.Context, path string) ([]string, error) {
	children, err := fs.dir.GetCollection(ctx, path)
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
