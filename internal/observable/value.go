// Package observable provides typed holders that notify subscribers when
// their contents change. Publishers never block on slow subscribers.
package observable

import "sync"

// Value holds the latest value of T and fans out changes to subscribers.
// A subscriber that falls behind only ever sees the most recent value.
type Value[T any] struct {
	mu      sync.RWMutex
	current T
	version uint64
	subs    map[uint64]chan T
	nextID  uint64
	equal   func(a, b T) bool
	closed  bool
}

// NewValue creates a Value holding initial
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[uint64]chan T),
	}
}

// NewComparableValue creates a Value that suppresses notifications when the
// new value equals the current one.
func NewComparableValue[T comparable](initial T) *Value[T] {
	v := NewValue(initial)
	v.equal = func(a, b T) bool { return a == b }
	return v
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Version counts the changes applied so far
func (v *Value[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Set stores next and notifies subscribers
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setLocked(next)
}

// SetIfVersion stores next only if no change happened since version was read.
// Reports whether the value was stored.
func (v *Value[T]) SetIfVersion(version uint64, next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.version != version {
		return false
	}
	v.setLocked(next)
	return true
}

func (v *Value[T]) setLocked(next T) {
	if v.equal != nil && v.equal(v.current, next) {
		return
	}
	v.current = next
	v.version++
	for _, ch := range v.subs {
		offerLatest(ch, next)
	}
}

// Subscribe returns a channel that receives the current value immediately and
// every later change. Call cancel to release the subscription; the channel is
// closed afterwards. After Close the channel holds the current value and is
// already closed.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	ch <- v.current
	if v.closed {
		close(ch)
		return ch, func() {}
	}

	id := v.nextID
	v.nextID++
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if sub, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}

// Close closes every subscriber channel. Later subscriptions start closed.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

// offerLatest replaces any unread value in ch with next. Callers hold the
// write lock, so there is a single sender per channel.
func offerLatest[T any](ch chan T, next T) {
	select {
	case ch <- next:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- next:
	default:
	}
}
