// Package subscription owns the location update request: the sampling
// policy, the provider registration and the Idle/Active state machine.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lightquark/maptracker/internal/observable"
	"github.com/lightquark/maptracker/internal/permission"
)

var (
	// ErrPermissionDenied means a required capability was missing when Start
	// was called. Start treats it as a no-op and never returns it.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPermissionRevoked means the permission was withdrawn while the
	// provider registration was in flight. Tracking did not start.
	ErrPermissionRevoked = errors.New("location permission revoked")
	// ErrProviderUnavailable wraps any other registration failure.
	ErrProviderUnavailable = errors.New("location provider unavailable")
)

// Config configures a Subscription.
type Config struct {
	Provider Provider
	Oracle   permission.Oracle
	Target   DeliveryTarget
	// Policy defaults to DefaultPolicy when zero
	Policy  Policy
	Logger  *slog.Logger
	Metrics *Metrics
}

// Subscription manages location updates for one delivery target.
// Start and Stop are meant to be called from a single control goroutine.
type Subscription struct {
	provider Provider
	oracle   permission.Oracle
	target   DeliveryTarget
	policy   Policy
	logger   *slog.Logger
	metrics  *Metrics

	state *observable.Value[State]
}

// New creates an idle subscription
func New(cfg Config) (*Subscription, error) {
	if cfg.Provider == nil {
		return nil, errors.New("subscription: provider is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("subscription: permission oracle is required")
	}
	if cfg.Target == nil {
		return nil, errors.New("subscription: delivery target is required")
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("subscription: invalid policy: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cfg.Metrics.setState(Idle)
	return &Subscription{
		provider: cfg.Provider,
		oracle:   cfg.Oracle,
		target:   cfg.Target,
		policy:   cfg.Policy,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		state:    observable.NewComparableValue(Idle),
	}, nil
}

// State returns the observable tracking state
func (s *Subscription) State() *observable.Value[State] {
	return s.state
}

// Policy returns the sampling policy sent to the provider
func (s *Subscription) Policy() Policy {
	return s.policy
}

// Target returns the delivery target registered with the provider
func (s *Subscription) Target() DeliveryTarget {
	return s.target
}

// Start requests location updates. When a required permission is missing it
// does nothing and returns nil. Calling Start while Active refreshes the
// registration. If the provider reports the permission was revoked the
// state returns to Idle and an error matching ErrPermissionRevoked is
// returned; other provider failures match ErrProviderUnavailable. Either
// failure also drops any registration left from an earlier Start.
func (s *Subscription) Start(ctx context.Context) error {
	s.logger.Debug("subscribing to location updates", "target", s.target.Address())

	if missing := permission.Missing(s.oracle); len(missing) > 0 {
		s.logger.Info("location updates not requested", "reason", ErrPermissionDenied, "capability", string(missing[0]))
		s.metrics.incStarts(ResultDenied)
		return nil
	}

	s.setState(Active)

	// same target every time, so this replaces any earlier registration
	err := s.provider.RegisterUpdates(ctx, s.policy, s.target)
	if err == nil {
		s.logger.Info("location updates requested",
			"target", s.target.Address(),
			"interval", s.policy.Interval,
			"fastest_interval", s.policy.FastestInterval,
			"max_wait", s.policy.MaxWaitTime,
			"priority", s.policy.Priority.String(),
		)
		s.metrics.incStarts(ResultStarted)
		return nil
	}

	// a failed refresh must not leave the earlier registration delivering
	if derr := s.provider.DeregisterUpdates(ctx, s.target); derr != nil {
		s.logger.Error("failed to deregister location updates after failed registration", "error", derr)
	}
	s.setState(Idle)
	if errors.Is(err, ErrPermissionRevoked) {
		s.logger.Info("location permission revoked during registration", "error", err)
		s.metrics.incStarts(ResultRevoked)
		return fmt.Errorf("start location updates: %w", err)
	}

	s.logger.Error("location provider registration failed", "error", err)
	s.metrics.incStarts(ResultUnavailable)
	return fmt.Errorf("start location updates: %w: %w", ErrProviderUnavailable, err)
}

// Stop cancels location updates. It always leaves the state Idle, and is a
// harmless no-op when nothing is registered.
func (s *Subscription) Stop(ctx context.Context) error {
	s.logger.Debug("unsubscribing from location updates", "target", s.target.Address())
	s.setState(Idle)

	if err := s.provider.DeregisterUpdates(ctx, s.target); err != nil {
		s.logger.Error("failed to deregister location updates", "error", err)
		return fmt.Errorf("stop location updates: %w", err)
	}
	return nil
}

func (s *Subscription) setState(next State) {
	s.state.Set(next)
	s.metrics.setState(next)
}
