package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightquark/maptracker/internal/models"
)

// Priority selects the accuracy/power trade-off requested from the provider
type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalancedPower
	PriorityLowPower
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalancedPower:
		return "balanced_power"
	case PriorityLowPower:
		return "low_power"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Policy is the sampling request handed to a location provider.
//
// Interval is best effort: delivery may be slower when no source is
// available, or faster when another consumer asked for a shorter interval.
// FastestInterval is a hard floor between deliveries. MaxWaitTime bounds how
// long samples may be buffered before a batch is delivered.
type Policy struct {
	Interval        time.Duration
	FastestInterval time.Duration
	MaxWaitTime     time.Duration
	Priority        Priority
}

// DefaultPolicy is the fixed sampling policy used for tracking
var DefaultPolicy = Policy{
	Interval:        30 * time.Second,
	FastestInterval: 10 * time.Second,
	MaxWaitTime:     2 * time.Minute,
	Priority:        PriorityHighAccuracy,
}

// Validate checks the policy is internally consistent
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if p.FastestInterval < 0 || p.FastestInterval > p.Interval {
		return fmt.Errorf("fastest interval %s must be within [0, %s]", p.FastestInterval, p.Interval)
	}
	if p.MaxWaitTime < 0 {
		return errors.New("max wait time must not be negative")
	}
	return nil
}

// DeliveryTarget is the stable address a provider pushes samples to. Registering
// the same address again replaces the earlier registration.
type DeliveryTarget interface {
	Address() string
	Deliver(ctx context.Context, samples []models.Sample) error
}

// Provider emits location samples to registered targets
type Provider interface {
	// RegisterUpdates starts or replaces delivery to target. It returns an
	// error matching ErrPermissionRevoked when the location permission was
	// withdrawn before the registration completed.
	RegisterUpdates(ctx context.Context, policy Policy, target DeliveryTarget) error
	// DeregisterUpdates stops delivery to target. Unknown targets are ignored.
	DeregisterUpdates(ctx context.Context, target DeliveryTarget) error
}
