// Package memory provides the in-process Directory used by tests and
// single-node deployments: a nested map tree guarded by one mutex, with
// child events fanned out through the shared subscription hub.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/platefeed/server/pkg/directory"
)

type Store struct {
	mu     sync.Mutex
	root   map[string]any
	hub    *directory.SubHub
	closed bool
}

func New() *Store {
	return &Store{
		root: make(map[string]any),
		hub:  directory.NewSubHub(),
	}
}

// Close shuts down the event hub and rejects further operations.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Shutdown()
}

func (s *Store) GetCollection(ctx context.Context, path string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, directory.ErrClosed
	}

	node, ok := s.getNode(path)
	if !ok {
		return map[string]any{}, nil
	}
	children, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("directory: %q is a leaf, not a collection", path)
	}
	out := make(map[string]any, len(children))
	for key, child := range children {
		out[key] = clone(child)
	}
	return out, nil
}

func (s *Store) GetChild(ctx context.Context, path string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, directory.ErrClosed
	}

	node, ok := s.getNode(path)
	if !ok {
		return nil, false, nil
	}
	return clone(node), true, nil
}

func (s *Store) SetChild(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(directory.Split(path)) == 0 {
		return fmt.Errorf("directory: cannot set the root path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return directory.ErrClosed
	}

	pending := s.hub.Stage(path, s.exists)
	s.setNode(path, clone(value))
	s.hub.Emit(pending, s.lookup)
	return nil
}

func (s *Store) RemoveChild(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return directory.ErrClosed
	}

	pending := s.hub.Stage(path, s.exists)
	s.removeNode(path)
	s.hub.Emit(pending, s.lookup)
	return nil
}

func (s *Store) IncrementCounter(ctx context.Context, path string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return directory.ErrClosed
	}

	var current int64
	if node, ok := s.getNode(path); ok {
		n, err := asInt(node)
		if err != nil {
			return fmt.Errorf("directory: counter at %q: %w", path, err)
		}
		current = n
	}

	pending := s.hub.Stage(path, s.exists)
	s.setNode(path, current+delta)
	s.hub.Emit(pending, s.lookup)
	return nil
}

func (s *Store) NewChildID() string {
	return directory.NewChildID()
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan directory.ChildEvent, error) {
	return s.hub.Subscribe(ctx, path)
}

func (s *Store) UnsubscribeAll(path string) {
	s.hub.UnsubscribeAll(path)
}

// tree walking, callers hold s.mu

func (s *Store) getNode(path string) (any, bool) {
	node := any(s.root)
	for _, seg := range directory.Split(path) {
		children, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = children[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func (s *Store) exists(path string) bool {
	_, ok := s.getNode(path)
	return ok
}

func (s *Store) lookup(path string) (any, bool) {
	node, ok := s.getNode(path)
	if !ok {
		return nil, false
	}
	return clone(node), true
}

func (s *Store) setNode(path string, value any) {
	segs := directory.Split(path)
	parent := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			parent[seg] = child
		}
		parent = child
	}
	parent[segs[len(segs)-1]] = value
}

func (s *Store) removeNode(path string) {
	segs := directory.Split(path)
	if len(segs) == 0 {
		return
	}
	// Track the chain of parents so empty maps can be pruned; an empty
	// subtree is indistinguishable from an absent one.
	chain := make([]map[string]any, 0, len(segs))
	parent := s.root
	for _, seg := range segs[:len(segs)-1] {
		chain = append(chain, parent)
		child, ok := parent[seg].(map[string]any)
		if !ok {
			return
		}
		parent = child
	}
	delete(parent, segs[len(segs)-1])
	for i := len(chain) - 1; i >= 0; i-- {
		if len(parent) > 0 {
			break
		}
		delete(chain[i], segs[i])
		parent = chain[i]
	}
}

func clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = clone(child)
		}
		return out
	default:
		return value
	}
}

func asInt(value any) (int64, error) {
	switch n := value.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value %T is not numeric", value)
	}
}
