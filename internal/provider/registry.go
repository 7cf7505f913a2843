// Package provider contains location providers: a push provider fed by
// devices posting to the delivery endpoint, and a simulator that walks a
// synthetic route.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/subscription"
)

// ErrNotRegistered is returned by Dispatch for an address with no live registration
var ErrNotRegistered = errors.New("no location updates registered for target")

// Dispatcher accepts samples addressed to a registered delivery target
type Dispatcher interface {
	Dispatch(address string, samples []models.Sample) error
}

// Registry tracks live registrations by target address and paces delivery
// according to each registration's policy. It is a complete push provider.
type Registry struct {
	mu     sync.Mutex
	regs   map[string]*registration
	logger *slog.Logger
	batch  bool
}

// NewRegistry creates a push provider. Samples are delivered as soon as the
// policy's fastest interval allows.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		regs:   make(map[string]*registration),
		logger: logger,
	}
}

// RegisterUpdates implements subscription.Provider. A registration for the
// same address is replaced.
func (r *Registry) RegisterUpdates(_ context.Context, policy subscription.Policy, target subscription.DeliveryTarget) error {
	r.replace(target.Address(), newRegistration(policy, target, r.batch, r.logger))
	return nil
}

// DeregisterUpdates implements subscription.Provider
func (r *Registry) DeregisterUpdates(_ context.Context, target subscription.DeliveryTarget) error {
	r.replace(target.Address(), nil)
	return nil
}

// Registered reports whether address has a live registration
func (r *Registry) Registered(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.regs[address]
	return ok
}

// Dispatch queues samples for the target registered at address
func (r *Registry) Dispatch(address string, samples []models.Sample) error {
	r.mu.Lock()
	reg, ok := r.regs[address]
	r.mu.Unlock()
	if !ok {
		return ErrNotRegistered
	}
	reg.offer(samples)
	return nil
}

func (r *Registry) replace(address string, next *registration) {
	r.mu.Lock()
	prev := r.regs[address]
	if next == nil {
		delete(r.regs, address)
	} else {
		r.regs[address] = next
	}
	r.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// registration buffers samples for one target and releases them no faster
// than the policy's fastest interval. With batching on, a batch is held
// until MaxWaitTime after its first sample.
type registration struct {
	policy subscription.Policy
	target subscription.DeliveryTarget
	batch  bool
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	buffer       []models.Sample
	firstQueued  time.Time
	lastDelivery time.Time
	timer        *time.Timer
	closed       bool
}

func newRegistration(policy subscription.Policy, target subscription.DeliveryTarget, batch bool, logger *slog.Logger) *registration {
	ctx, cancel := context.WithCancel(context.Background())
	return &registration{
		policy: policy,
		target: target,
		batch:  batch,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (reg *registration) offer(samples []models.Sample) {
	if len(samples) == 0 {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return
	}

	now := time.Now()
	if len(reg.buffer) == 0 {
		reg.firstQueued = now
	}
	reg.buffer = append(reg.buffer, samples...)
	if reg.timer != nil {
		return
	}

	due := now
	if !reg.lastDelivery.IsZero() {
		if floor := reg.lastDelivery.Add(reg.policy.FastestInterval); floor.After(due) {
			due = floor
		}
	}
	if reg.batch {
		if window := reg.firstQueued.Add(reg.policy.MaxWaitTime); window.After(due) {
			due = window
		}
	}
	reg.timer = time.AfterFunc(due.Sub(now), reg.flush)
}

func (reg *registration) flush() {
	reg.mu.Lock()
	if reg.closed || len(reg.buffer) == 0 {
		reg.timer = nil
		reg.mu.Unlock()
		return
	}
	batch := reg.buffer
	reg.buffer = nil
	reg.timer = nil
	reg.lastDelivery = time.Now()
	reg.mu.Unlock()

	if err := reg.target.Deliver(reg.ctx, batch); err != nil {
		reg.logger.Error("location delivery failed",
			"target", reg.target.Address(), "samples", len(batch), "error", err)
	}
}

func (reg *registration) close() {
	reg.mu.Lock()
	reg.closed = true
	if reg.timer != nil {
		reg.timer.Stop()
		reg.timer = nil
	}
	dropped := len(reg.buffer)
	reg.buffer = nil
	reg.mu.Unlock()

	reg.cancel()
	if dropped > 0 {
		reg.logger.Debug("discarded undelivered samples", "target", reg.target.Address(), "samples", dropped)
	}
}
