package testutil

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/platefeed/server/pkg/blob/memblob"
	"github.com/platefeed/server/pkg/directory/memory"
	"github.com/platefeed/server/pkg/logger/mocklogger"
	"github.com/platefeed/server/pkg/service/sauth"
	"github.com/platefeed/server/pkg/service/sfollow"
	"github.com/platefeed/server/pkg/service/srecipe"
	"github.com/platefeed/server/pkg/service/suser"
)

type BaseTestServices struct {
	Dir   *memory.Store
	Blobs *memblob.Store
	Us    suser.UserService
	Fs    sfollow.FollowService
	Rs    srecipe.RecipeService
	As    sauth.AuthService

	t   *testing.T
	ctx context.Context
}

// CreateBaseServices wires an in-memory directory and blob store into the
// full service stack with a mock logger.
func CreateBaseServices(ctx context.Context, t *testing.T) *BaseTestServices {
	dir := memory.New()
	blobs := memblob.New()
	logger := mocklogger.NewMockLogger()

	us := suser.New(dir, blobs, logger)
	fs := sfollow.New(dir, us, logger)
	rs := srecipe.New(dir, blobs, logger)
	as := sauth.New(dir, us, blobs, []byte("test-secret"), time.Hour, logger)

	base := &BaseTestServices{
		Dir:   dir,
		Blobs: blobs,
		Us:    us,
		Fs:    fs,
		Rs:    rs,
		As:    as,
		t:     t,
		ctx:   ctx,
	}
	t.Cleanup(dir.Close)
	return base
}

func (b *BaseTestServices) Logger() *slog.Logger {
	return mocklogger.NewMockLogger()
}

func AssertFatal[c comparable](t *testing.T, expected, got c) {
	t.Helper()
	if got != expected {
		t.Fatalf("got %v, expected %v", got, expected)
	}
}

func Assert[c comparable](t *testing.T, expected, got c) {
	t.Helper()
	if got != expected {
		t.Errorf("got %v, expected %v", got, expected)
	}
}

func AssertNot[c comparable](t *testing.T, not, got c) {
	t.Helper()
	if got == not {
		t.Errorf("got %v, expected not %v", got, not)
	}
}
