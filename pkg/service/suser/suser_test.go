package suser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/model/muser"
	"github.com/platefeed/server/pkg/service/suser"
	"github.com/platefeed/server/pkg/testutil"
)

func TestCreateAndGetProfile(t *testing.T) {
	ctx := context.Background()
	base := testutil.CreateBaseServices(ctx, t)

	user := muser.User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, base.Us.CreateProfile(ctx, user))

	got, err := base.Us.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, &user, got)

	_, err = base.Us.GetProfile(ctx, "nobody")
	require.ErrorIs(t, err, suser.ErrUserNotFound)
}

func TestCreateProfileRequiresID(t *testing.T) {
	ctx := context.Background()
	base := testutil.CreateBaseServices(ctx, t)

	err := base.Us.CreateProfile(ctx, muser.User{Username: "alice"})
	require.Error(t, err)
}

func TestGetDisplayName(t *testing.T) {
	ctx := context.Background()
	base := testutil.CreateBaseServices(ctx, t)

	require.NoError(t, base.Us.CreateProfile(ctx, muser.User{ID: "u1", Username: "alice", Email: "a@b.c"}))

	name, err := base.Us.GetDisplayName(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", name)

	_, err = base.Us.GetDisplayName(ctx, "nobody")
	require.ErrorIs(t, err, suser.ErrUserNotFound)
}

func TestUsernameMap(t *testing.T) {
	ctx := context.Background()
	base := testutil.CreateBaseServices(ctx, t)

	require.NoError(t, base.Us.CreateProfile(ctx, muser.User{ID: "u1", Username: "alice", Email: "a@b.c"}))
	require.NoError(t, base.Us.CreateProfile(ctx, muser.User{ID: "u2", Username: "bob", Email: "b@b.c"}))

	names, err := base.Us.UsernameMap(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"u1": "alice", "u2": "bob"}, names)

	names, err = base.Us.UsernameMap(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestUsernameMapFailsWholeBatch(t *testing.T) {
	ctx := context.Background()
	base := testutil.CreateBaseServices(ctx, t)

	require.NoError(t, base.Us.CreateProfile(ctx, muser.User{ID: "u1", Username: "alice", Email: "a@b.c"}))

	_, err := base.Us.UsernameMap(ctx, []string{"u1", "ghost"})
	require.ErrorIs(t, err, suser.ErrUserNotFound)
}

func TestProfilePictureRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := testutil.CreateBaseServices(ctx, t)

	data := []byte{0xff, 0xd8, 0xff}
	require.NoError(t, base.Us.SetProfilePicture(ctx, "u1", data))

	got, err := base.Us.GetProfilePicture(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, data, got)
}
