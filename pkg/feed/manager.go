package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/platefeed/server/pkg/directory"
	"github.com/platefeed/server/pkg/service/sfollow"
	"github.com/platefeed/server/pkg/service/srecipe"
)

// Manager tracks one feed cache per signed-in user. A cache is created and
// launched on first open (sign-in) and killed on close (sign-out), tying the
// cache lifecycle to authentication state instead of global mutable state.
type Manager struct {
	dir     directory.Directory
	follows sfollow.FollowService
	recipes srecipe.RecipeService
	logger  *slog.Logger

	mu     sync.Mutex
	caches map[string]*Cache
}

func NewManager(dir directory.Directory, follows sfollow.FollowService, recipes srecipe.RecipeService,
	logger *slog.Logger) *Manager {
	return &Manager{
		dir:     dir,
		follows: follows,
		recipes: recipes,
		logger:  logger,
		caches:  make(map[string]*Cache),
	}
}

// Open returns the user's cache, creating and launching it if needed.
func (m *Manager) Open(ctx context.Context, userID string) (*Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cache, ok := m.caches[userID]; ok {
		return cache, nil
	}
	cache := New(m.dir, m.follows, m.recipes, userID, m.logger)
	if err := cache.Launch(ctx); err != nil {
		cache.Close()
		return nil, err
	}
	m.caches[userID] = cache
	return cache, nil
}

// Get returns the user's cache if one is open.
func (m *Manager) Get(userID string) (*Cache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cache, ok := m.caches[userID]
	return cache, ok
}

// Close tears down the user's cache, if any.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	cache, ok := m.caches[userID]
	delete(m.caches, userID)
	m.mu.Unlock()
	if ok {
		cache.Close()
	}
}

// CloseAll tears down every open cache; used at server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	caches := m.caches
	m.caches = make(map[string]*Cache)
	m.mu.Unlock()
	for _, cache := range caches {
		cache.Close()
	}
}
