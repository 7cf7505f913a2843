package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/observable"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/spatial"
	"github.com/lightquark/maptracker/internal/store"
	"github.com/lightquark/maptracker/internal/subscription"
)

// DefaultTargetAddress names the delivery target when none is configured
const DefaultTargetAddress = "tracking"

// ErrClosed is returned for control requests after Close
var ErrClosed = errors.New("tracking service closed")

// ErrInvalidRecord is returned when a caller-supplied record has bad coordinates
var ErrInvalidRecord = errors.New("invalid location record")

// Config configures a TrackingService.
type Config struct {
	Store    *store.Store
	Provider subscription.Provider
	Oracle   permission.Oracle
	// TargetAddress defaults to DefaultTargetAddress
	TargetAddress string
	// Policy defaults to subscription.DefaultPolicy
	Policy              subscription.Policy
	Logger              *slog.Logger
	SubscriptionMetrics *subscription.Metrics
}

// TrackingService is the single access point for the view layer. It owns
// the location subscription and the store, and runs Start/Stop on one
// control goroutine.
type TrackingService struct {
	store        *store.Store
	subscription *subscription.Subscription
	intake       *subscription.Intake
	presence     *Presence
	status       *observable.Value[bool]
	logger       *slog.Logger

	control   chan func()
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTrackingService composes the store and a location subscription.
// Construct it once in the composition root and pass it to its users.
func NewTrackingService(cfg Config) (*TrackingService, error) {
	if cfg.Store == nil {
		return nil, errors.New("tracking service: store is required")
	}
	if cfg.TargetAddress == "" {
		cfg.TargetAddress = DefaultTargetAddress
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &TrackingService{
		store:    cfg.Store,
		presence: NewPresence(),
		status:   observable.NewComparableValue(false),
		logger:   cfg.Logger,
		control:  make(chan func()),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	intake, err := subscription.NewIntake(subscription.IntakeConfig{
		Address:    cfg.TargetAddress,
		Oracle:     cfg.Oracle,
		Foreground: s.presence,
		Sink:       s,
		Logger:     cfg.Logger,
		Metrics:    cfg.SubscriptionMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("tracking service: %w", err)
	}

	sub, err := subscription.New(subscription.Config{
		Provider: cfg.Provider,
		Oracle:   cfg.Oracle,
		Target:   intake,
		Policy:   cfg.Policy,
		Logger:   cfg.Logger,
		Metrics:  cfg.SubscriptionMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("tracking service: %w", err)
	}

	s.intake = intake
	s.subscription = sub

	go s.run()
	return s, nil
}

// Start requests location updates on the control goroutine.
// See subscription.Subscription.Start for the error contract.
func (s *TrackingService) Start(ctx context.Context) error {
	return s.onControl(ctx, func() error {
		err := s.subscription.Start(ctx)
		s.mirrorStatus()
		return err
	})
}

// Stop cancels location updates on the control goroutine. Queued store
// writes are left to drain.
func (s *TrackingService) Stop(ctx context.Context) error {
	return s.onControl(ctx, func() error {
		err := s.subscription.Stop(ctx)
		s.mirrorStatus()
		return err
	})
}

// TrackingStatus is true while location updates are active
func (s *TrackingService) TrackingStatus() *observable.Value[bool] {
	return s.status
}

// RecentRecords returns a live view of the newest records, capped at
// store.DefaultQueryLimit
func (s *TrackingService) RecentRecords() (*store.View, error) {
	return s.store.Query(store.DefaultQueryLimit)
}

// Query returns a live view of the newest limit records
func (s *TrackingService) Query(limit int) (*store.View, error) {
	return s.store.Query(limit)
}

// RecordIncoming implements subscription.RecordSink. The write is queued;
// storage failures are reported through Failures.
func (s *TrackingService) RecordIncoming(_ context.Context, records []models.LocationRecord) error {
	var w *store.Write
	if len(records) == 1 {
		w = s.store.Add(records[0])
	} else {
		w = s.store.AddBatch(records)
	}
	return w.Err()
}

// Backfill stores caller-supplied records as one atomic batch. Records
// without an id get a fresh one.
func (s *TrackingService) Backfill(records []models.LocationRecord) (*store.Write, error) {
	batch := make([]models.LocationRecord, len(records))
	for i, rec := range records {
		if err := validateRecord(rec); err != nil {
			return nil, err
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.Timestamp = rec.Timestamp.Truncate(time.Millisecond)
		batch[i] = rec
	}
	return s.store.AddBatch(batch), nil
}

// UpdateRecord replaces a stored record by id
func (s *TrackingService) UpdateRecord(rec models.LocationRecord) (*store.Write, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	rec.Timestamp = rec.Timestamp.Truncate(time.Millisecond)
	return s.store.Update(rec), nil
}

// Record returns one stored record
func (s *TrackingService) Record(id uuid.UUID) (models.LocationRecord, error) {
	return s.store.Get(id)
}

// Reset removes every stored record
func (s *TrackingService) Reset() *store.Write {
	return s.store.Clear()
}

// Failures subscribes to storage failures of queued writes
func (s *TrackingService) Failures() (<-chan store.WriteFailure, func()) {
	return s.store.Failures()
}

// Presence tracks whether the application is in the foreground
func (s *TrackingService) Presence() *Presence {
	return s.presence
}

// DeliveryTarget is the target registered with the location provider
func (s *TrackingService) DeliveryTarget() subscription.DeliveryTarget {
	return s.intake
}

// Close stops tracking, shuts down the control goroutine and drains the store
func (s *TrackingService) Close(ctx context.Context) error {
	stopErr := s.Stop(ctx)
	if errors.Is(stopErr, ErrClosed) {
		stopErr = nil
	}

	s.closeOnce.Do(func() { close(s.closing) })
	<-s.done

	s.status.Close()
	return errors.Join(stopErr, s.store.Close())
}

func (s *TrackingService) mirrorStatus() {
	s.status.Set(s.subscription.State().Get() == subscription.Active)
}

func (s *TrackingService) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.control:
			fn()
		case <-s.closing:
			return
		}
	}
}

// onControl runs fn on the control goroutine and waits for its result. ctx
// only bounds the handoff; once fn has been taken its result is returned.
func (s *TrackingService) onControl(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	task := func() { result <- fn() }

	select {
	case s.control <- task:
	case <-s.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-result
}

func validateRecord(rec models.LocationRecord) error {
	if !spatial.ValidCoordinate(rec.Latitude, rec.Longitude) {
		return fmt.Errorf("%w: coordinates %v, %v", ErrInvalidRecord, rec.Latitude, rec.Longitude)
	}
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	return nil
}
