// ABOUTME: In-memory fan-out event bus connecting the realtime relay to handlers
// ABOUTME: Broadcasts every relayed frame to all subscribers with no routing

package voice

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// Generous enough that a handler draining between waits never drops.
	subscriberBufferSize = 64
)

// Bus provides in-memory pub/sub for call events. Every frame received over
// the realtime relay is broadcast to all current subscribers; there is no
// per-call routing at this layer. A handler that needs to correlate an event
// with its own call must inspect the payload itself.
//
// A Bus is created once by NewServer and lives for the server's lifetime.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event // subID -> ch
	closed      bool
	dropped     atomic.Int64
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for all broadcast events. Returns a
// channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled. After Close the returned channel is already closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Broadcast sends an event to every current subscriber. Non-blocking: the
// event is dropped for subscribers whose channels are full, so a stalled
// listener never delays the publisher or other listeners. Broadcast never
// fails; publishing to a closed or empty bus is a no-op.
//
// Sends happen under the read lock. They cannot block, and holding the lock
// means a channel is never closed mid-send.
func (b *Bus) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for subID, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Debug("dropped event for slow subscriber",
				"sub_id", subID,
				"event_id", event.ID)
		}
	}
}

// Listen registers fn as a callback subscriber, consuming events on a
// dedicated goroutine until ctx is cancelled or the bus closes. A panic in
// fn is recovered and logged per event; it never reaches the publisher and
// never stops delivery of later events.
func (b *Bus) Listen(ctx context.Context, fn func(Event)) string {
	ch, subID := b.Subscribe(ctx)
	go func() {
		for event := range ch {
			b.invoke(fn, event)
		}
	}()
	return subID
}

// invoke runs one callback delivery, isolating panics.
func (b *Bus) invoke(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				"panic", r,
				"event_id", event.ID)
		}
	}()
	fn(event)
}

// Unsubscribe removes a subscription and closes its channel. Idempotent:
// unknown or already-removed IDs are ignored.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.subscribers[subID]
	if !exists {
		return
	}

	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Dropped reports how many events have been dropped for slow subscribers
// since the bus was created.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts down the bus and closes all subscriber channels. Subsequent
// broadcasts are dropped and subsequent subscriptions receive an
// already-closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("bus closed")
}
