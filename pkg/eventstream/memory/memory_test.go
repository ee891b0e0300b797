package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/eventstream"
	"github.com/platefeed/server/pkg/eventstream/memory"
)

func recvEvent(t *testing.T, ch <-chan eventstream.Event[string, int]) eventstream.Event[string, int] {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return eventstream.Event[string, int]{}
	}
}

func requireClosed(t *testing.T, ch <-chan eventstream.Event[string, int]) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestPublishReachesMatchingSubscriber(t *testing.T) {
	s := memory.NewInMemorySyncStreamer[string, int]()
	defer s.Shutdown()

	ch, err := s.Subscribe(context.Background(), func(topic string) bool { return topic == "a" })
	require.NoError(t, err)

	s.Publish("a", 1, 2)
	s.Publish("b", 99)

	evt := recvEvent(t, ch)
	require.Equal(t, "a", evt.Topic)
	require.Equal(t, 1, evt.Payload)
	require.Equal(t, 2, recvEvent(t, ch).Payload)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event for filtered topic: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNilFilterMatchesEveryTopic(t *testing.T) {
	s := memory.NewInMemorySyncStreamer[string, int]()
	defer s.Shutdown()

	ch, err := s.Subscribe(context.Background(), nil)
	require.NoError(t, err)

	s.Publish("x", 1)
	s.Publish("y", 2)

	require.Equal(t, "x", recvEvent(t, ch).Topic)
	require.Equal(t, "y", recvEvent(t, ch).Topic)
}

func TestContextCancelClosesSubscriber(t *testing.T) {
	s := memory.NewInMemorySyncStreamer[string, int]()
	defer s.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Subscribe(ctx, nil)
	require.NoError(t, err)

	cancel()
	requireClosed(t, ch)

	// Publishing after removal must not panic.
	s.Publish("a", 1)
}

func TestShutdownClosesAllSubscribers(t *testing.T) {
	s := memory.NewInMemorySyncStreamer[string, int]()

	first, err := s.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	second, err := s.Subscribe(context.Background(), nil)
	require.NoError(t, err)

	s.Shutdown()
	requireClosed(t, first)
	requireClosed(t, second)

	_, err = s.Subscribe(context.Background(), nil)
	require.Error(t, err)

	// Idempotent, and publishing into a shut-down streamer is a no-op.
	s.Shutdown()
	s.Publish("a", 1)
}
