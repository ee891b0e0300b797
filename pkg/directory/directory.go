// Package directory defines the hierarchical key-value store the application
// is built on: a JSON tree addressed by slash-separated paths, with point
// reads, one-level collection reads, and a per-child change event feed.
// Values are JSON trees (map[string]any, []any, string, float64, bool).
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/platefeed/server/pkg/idwrap"
)

var (
	ErrNotFound = errors.New("directory: path not found")
	ErrClosed   = errors.New("directory: store closed")
)

type EventType int8

const (
	ChildAdded EventType = iota + 1
	ChildRemoved
	ChildChanged
)

func (t EventType) String() string {
	switch t {
	case ChildAdded:
		return "child_added"
	case ChildRemoved:
		return "child_removed"
	case ChildChanged:
		return "child_changed"
	default:
		return "unknown"
	}
}

// ChildEvent reports a change to a direct child of a subscribed path. Value is
// the child's full subtree after the change, nil for removals.
type ChildEvent struct {
	Type  EventType
	Path  string // subscribed parent path
	Key   string // child key under Path
	Value any
}

// Directory is the backend store contract. All methods are safe for
// concurrent use. Reads of absent paths return ok=false, not an error.
type Directory interface {
	// GetCollection returns the direct children of path as key -> subtree.
	// An absent path yields an empty map.
	GetCollection(ctx context.Context, path string) (map[string]any, error)

	// GetChild returns the subtree or leaf at path.
	GetChild(ctx context.Context, path string) (any, bool, error)

	// SetChild writes value at path, replacing any existing subtree.
	SetChild(ctx context.Context, path string, value any) error

	// RemoveChild deletes the subtree at path. Removing an absent path is
	// not an error.
	RemoveChild(ctx context.Context, path string) error

	// IncrementCounter atomically adds delta to the integer leaf at path,
	// treating an absent leaf as zero.
	IncrementCounter(ctx context.Context, path string, delta int64) error

	// NewChildID allocates a backend-assigned child identifier.
	NewChildID() string

	// Subscribe returns a channel of child events for the direct children
	// of path. The channel closes when ctx is cancelled, UnsubscribeAll is
	// called for the path, or the store shuts down.
	Subscribe(ctx context.Context, path string) (<-chan ChildEvent, error)

	// UnsubscribeAll detaches every subscriber registered on path.
	UnsubscribeAll(path string)
}

// Join builds a path from segments, ignoring empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split returns the path's segments. The empty path has no segments.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ChildOf reports the direct-child key of full relative to parent. ok is
// false when full is not strictly below parent.
func ChildOf(parent, full string) (string, bool) {
	parentSegs := Split(parent)
	fullSegs := Split(full)
	if len(fullSegs) <= len(parentSegs) {
		return "", false
	}
	for i, seg := range parentSegs {
		if fullSegs[i] != seg {
			return "", false
		}
	}
	return fullSegs[len(parentSegs)], true
}

// NewChildID returns a fresh ULID string, the id scheme both implementations
// share.
func NewChildID() string {
	return idwrap.NewNow().String()
}
