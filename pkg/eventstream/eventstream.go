package eventstream

import "context"

// SyncStreamer is a generic, lockless interface for real-time event fan-out.
// Topic selects which subscribers receive a payload; Payload is the event body.
//
// Example usage:
//
//	streamer := memory.NewInMemorySyncStreamer[string, ChangeEvent]()
//	events, _ := streamer.Subscribe(ctx, func(topic string) bool { return topic == "recipes" })
//	streamer.Publish("recipes", ChangeEvent{...})
//	defer streamer.Shutdown()
type SyncStreamer[Topic any, Payload any] interface {
	// Subscribe returns a read-only channel for receiving events whose topic
	// passes the filter. A nil filter matches every topic. The channel is
	// closed when the context is cancelled or the streamer shuts down.
	Subscribe(ctx context.Context, filter TopicFilter[Topic]) (<-chan Event[Topic, Payload], error)

	// Publish sends payloads to all matching subscribers.
	// Non-blocking - events are dropped if a subscriber's buffer is full.
	Publish(topic Topic, payloads ...Payload)

	// Shutdown gracefully shuts down the streamer and closes all subscriber channels.
	Shutdown()
}

// TopicFilter reports whether a subscriber wants events for the given topic.
type TopicFilter[Topic any] func(Topic) bool

// Event pairs a published payload with the topic it was published under.
type Event[Topic any, Payload any] struct {
	Topic   Topic
	Payload Payload
}
