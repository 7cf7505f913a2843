package service

import "sync/atomic"

// Presence counts attached viewers. The application counts as foreground
// while at least one viewer is attached.
type Presence struct {
	viewers atomic.Int64
}

// NewPresence creates a Presence with no viewers
func NewPresence() *Presence {
	return &Presence{}
}

// Enter registers a viewer and returns the function that removes it
func (p *Presence) Enter() func() {
	p.viewers.Add(1)
	var left atomic.Bool
	return func() {
		if left.CompareAndSwap(false, true) {
			p.viewers.Add(-1)
		}
	}
}

// Viewers returns the number of attached viewers
func (p *Presence) Viewers() int64 {
	return p.viewers.Load()
}

// Foreground implements subscription.ForegroundSource
func (p *Presence) Foreground() bool {
	return p.viewers.Load() > 0
}
