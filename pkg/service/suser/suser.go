package suser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/platefeed/server/pkg/blob"
	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/model/muser"
)

var ErrUserNotFound = errors.New("suser: user not found")

// lookupParallelism bounds the fan-out of batched username resolution.
const lookupParallelism = 8

type UserService struct {
	dir    directory.Directory
	blobs  blob.Store
	logger *slog.Logger
}

func New(dir directory.Directory, blobs blob.Store, logger *slog.Logger) UserService {
	return UserService{dir: dir, blobs: blobs, logger: logger}
}

func userPath(userID string) string {
	return directory.Join("users", userID)
}

// CreateProfile writes the profile leaves for a new user. Follow, upload, and
// bookmark markers live under the same subtree and are written by their own
// services, so only the profile leaves are touched here.
func (us UserService) CreateProfile(ctx context.Context, user muser.User) error {
	if user.ID == "" {
		return fmt.Errorf("suser: profile requires an assigned id")
	}
	base := userPath(user.ID)
	if err := us.dir.SetChild(ctx, directory.Join(base, "username"), user.Username); err != nil {
		return err
	}
	if err := us.dir.SetChild(ctx, directory.Join(base, "email"), user.Email); err != nil {
		return err
	}
	if user.PasswordHash != "" {
		if err := us.dir.SetChild(ctx, directory.Join(base, "password"), user.PasswordHash); err != nil {
			return err
		}
	}
	return nil
}

// GetProfile reads the profile leaves for a user.
// WARNING: the result carries the password hash, do not expose on public api.
func (us UserService) GetProfile(ctx context.Context, userID string) (*muser.User, error) {
	value, ok, err := us.dir.GetChild(ctx, userPath(userID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	tree, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("suser: profile at %q is not a record", userID)
	}
	username, ok := tree["username"].(string)
	if !ok {
		return nil, ErrUserNotFound
	}
	user := &muser.User{ID: userID, Username: username}
	if email, ok := tree["email"].(string); ok {
		user.Email = email
	}
	if hash, ok := tree["password"].(string); ok {
		user.PasswordHash = hash
	}
	return user, nil
}

func (us UserService) GetDisplayName(ctx context.Context, userID string) (string, error) {
	value, ok, err := us.dir.GetChild(ctx, directory.Join(userPath(userID), "username"))
	if err != nil {
		return "", err
	}
	name, isString := value.(string)
	if !ok || !isString {
		return "", ErrUserNotFound
	}
	return name, nil
}

// UsernameMap resolves a set of user ids to display names with one lookup per
// id, joining when all have completed. Any failed lookup fails the whole
// batch; sibling lookups are cancelled through the group context.
func (us UserService) UsernameMap(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupParallelism)
	for _, id := range userIDs {
		id := id
		g.Go(func() error {
			name, err := us.GetDisplayName(gctx, id)
			if err != nil {
				return fmt.Errorf("suser: resolving username for %q: %w", id, err)
			}
			mu.Lock()
			out[id] = name
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (us UserService) SetProfilePicture(ctx context.Context, userID string, data []byte) error {
	return us.blobs.Put(ctx, blob.ProfileImagePath(userID), data)
}

func (us UserService) GetProfilePicture(ctx context.Context, userID string) ([]byte, error) {
	return us.blobs.Get(ctx, blob.ProfileImagePath(userID))
}
