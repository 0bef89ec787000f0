// Package bus provides the in-process fan-out primitive connecting the
// pipeline stages. Delivery is best-effort per subscriber: a full queue
// drops the message for that subscriber only, so a slow consumer can
// never stall a live-data producer.
package bus

import "sync"

// DefaultQueueSize is the per-subscriber queue capacity used by New.
const DefaultQueueSize = 512

// Bus fans out published messages to every subscriber queue. Subscribe,
// Unsubscribe and Publish are safe to call concurrently.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	size   int
	onDrop func()
}

// New creates a bus whose subscriber queues hold up to queueSize pending
// messages. queueSize <= 0 falls back to DefaultQueueSize.
func New[T any](queueSize int) *Bus[T] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus[T]{
		subs: make(map[chan T]struct{}),
		size: queueSize,
	}
}

// OnDrop registers a callback invoked once per dropped message. Set it
// before the first Publish; it is not synchronized with Publish.
func (b *Bus[T]) OnDrop(fn func()) {
	b.onDrop = fn
}

// Subscribe registers and returns a new bounded FIFO queue.
func (b *Bus[T]) Subscribe() chan T {
	ch := make(chan T, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a queue; future publishes no longer reach it.
// Unknown queues are ignored. Once Unsubscribe returns no publisher
// holds the queue, so the owner may close it to end a ranging consumer.
func (b *Bus[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Publish delivers msg to every registered queue without blocking.
// Messages to a full queue are dropped for that subscriber.
func (b *Bus[T]) Publish(msg T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

// Subscribers returns the number of registered queues.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
