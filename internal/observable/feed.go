package observable

import (
	"sync"
	"sync/atomic"
)

// DefaultFeedBuffer is the per-subscriber buffer used by NewFeed
const DefaultFeedBuffer = 64

// Feed broadcasts discrete events. Unlike Value every event matters, so each
// subscriber gets a buffered channel; events for a full subscriber are
// dropped and counted rather than blocking the publisher.
type Feed[T any] struct {
	mu      sync.RWMutex
	subs    map[uint64]chan T
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	closed  bool
}

// NewFeed creates a Feed with DefaultFeedBuffer
func NewFeed[T any]() *Feed[T] {
	return NewFeedWithBuffer[T](DefaultFeedBuffer)
}

// NewFeedWithBuffer creates a Feed whose subscribers buffer up to size events
func NewFeedWithBuffer[T any](size int) *Feed[T] {
	if size < 1 {
		size = 1
	}
	return &Feed[T]{
		subs:   make(map[uint64]chan T),
		buffer: size,
	}
}

// Publish delivers event to every subscriber with room for it
func (f *Feed[T]) Publish(event T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
			f.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber. Call cancel to release it.
// Subscribing to a closed Feed returns a closed channel.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, f.buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Dropped returns how many events were discarded for slow subscribers
func (f *Feed[T]) Dropped() uint64 {
	return f.dropped.Load()
}

// Close closes every subscriber channel
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
