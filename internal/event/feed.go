// Package event provides in-process typed publish/subscribe feeds used to
// notify presentation layers of store and tracker activity.
package event

import "sync"

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// events are dropped for it. Publish never blocks.
const subscriberBuffer = 16

// Feed is a typed broadcast channel. Each subscriber receives every event
// published after it subscribed, on its own buffered channel.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a new subscriber and returns its channel together
// with a cancel function. Cancel is idempotent and closes the channel.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan T, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers v to all current subscribers. Subscribers whose buffer
// is full miss the event rather than stalling the publisher.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close terminates the feed and closes all subscriber channels.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
