package directory

import (
	"context"
	"sync"

	"github.com/platefeed/server/pkg/eventstream"
	"github.com/platefeed/server/pkg/eventstream/memory"
)

// SubHub implements the subscription side of a Directory on top of the
// in-memory event streamer. Store implementations stage the pre-mutation
// child state, apply the mutation, then emit; the hub turns that into
// added/removed/changed child events per subscribed parent path.
type SubHub struct {
	mu       sync.Mutex
	streamer eventstream.SyncStreamer[string, ChildEvent]
	cancels  map[string]map[*struct{}]context.CancelFunc
}

func NewSubHub() *SubHub {
	return &SubHub{
		streamer: memory.NewInMemorySyncStreamer[string, ChildEvent](),
		cancels:  make(map[string]map[*struct{}]context.CancelFunc),
	}
}

func (h *SubHub) Subscribe(ctx context.Context, path string) (<-chan ChildEvent, error) {
	subCtx, cancel := context.WithCancel(ctx)
	events, err := h.streamer.Subscribe(subCtx, func(topic string) bool { return topic == path })
	if err != nil {
		cancel()
		return nil, err
	}

	token := new(struct{})
	h.mu.Lock()
	if h.cancels[path] == nil {
		h.cancels[path] = make(map[*struct{}]context.CancelFunc)
	}
	h.cancels[path][token] = cancel
	h.mu.Unlock()

	out := make(chan ChildEvent, cap(events))
	go func() {
		defer close(out)
		defer h.drop(path, token)
		for evt := range events {
			out <- evt.Payload
		}
	}()
	return out, nil
}

func (h *SubHub) UnsubscribeAll(path string) {
	h.mu.Lock()
	cancels := h.cancels[path]
	delete(h.cancels, path)
	h.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (h *SubHub) Shutdown() {
	h.mu.Lock()
	all := h.cancels
	h.cancels = make(map[string]map[*struct{}]context.CancelFunc)
	h.mu.Unlock()
	for _, cancels := range all {
		for _, cancel := range cancels {
			cancel()
		}
	}
	h.streamer.Shutdown()
}

func (h *SubHub) drop(path string, token *struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.cancels[path]; ok {
		if cancel, ok := m[token]; ok {
			cancel()
			delete(m, token)
		}
		if len(m) == 0 {
			delete(h.cancels, path)
		}
	}
}

// PendingEvent captures, before a mutation at a descendant path, whether the
// affected direct child of a subscribed parent already existed.
type PendingEvent struct {
	Parent  string
	Key     string
	Existed bool
}

// Stage resolves which subscribed parents the mutation at path touches.
// exists must report pre-mutation existence.
func (h *SubHub) Stage(path string, exists func(path string) bool) []PendingEvent {
	h.mu.Lock()
	parents := make([]string, 0, len(h.cancels))
	for p := range h.cancels {
		parents = append(parents, p)
	}
	h.mu.Unlock()

	var pending []PendingEvent
	for _, parent := range parents {
		key, ok := ChildOf(parent, path)
		if !ok {
			continue
		}
		pending = append(pending, PendingEvent{
			Parent:  parent,
			Key:     key,
			Existed: exists(Join(parent, key)),
		})
	}
	return pending
}

// Emit publishes the events implied by the staged state and the post-mutation
// lookup: new child -> added, vanished child -> removed, otherwise changed.
func (h *SubHub) Emit(pending []PendingEvent, lookup func(path string) (any, bool)) {
	for _, p := range pending {
		value, ok := lookup(Join(p.Parent, p.Key))
		var evtType EventType
		switch {
		case p.Existed && !ok:
			evtType = ChildRemoved
		case p.Existed && ok:
			evtType = ChildChanged
		case !p.Existed && ok:
			evtType = ChildAdded
		default:
			continue
		}
		h.streamer.Publish(p.Parent, ChildEvent{
			Type:  evtType,
			Path:  p.Parent,
			Key:   p.Key,
			Value: value,
		})
	}
}
