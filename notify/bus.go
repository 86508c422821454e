/*
Package notify provides the in-process event bus behind the engine's
Broadcaster.

PURPOSE:
  Fan-out of container change events to live subscribers (websocket
  bridges, the stats sweeper, test probes). Delivery is best-effort:
  a subscriber that cannot keep up loses events rather than blocking
  the publisher. Consumers must treat every event as "latest known" and
  re-read state, never replay.

SEE ALSO:
  - engine/engine.go: The Broadcaster interface this satisfies
*/
package notify

import (
	"context"
	"sync"
)

// Event is one published notification.
type Event struct {
	Topic   string
	Payload any
}

// Bus is an in-process publish/subscribe hub. The zero value is not
// usable; construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers the event to every current subscriber. Subscribers
// with full buffers are skipped. Satisfies engine.Broadcaster.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	event := Event{Topic: topic, Payload: payload}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Slow subscriber; drop rather than block the mutation path.
		}
	}
	return nil
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus a cancel function. Cancel is idempotent and
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Close drops all subscribers. Subsequent publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
