package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/subscription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type delivery struct {
	at      time.Time
	samples []models.Sample
}

// recordingTarget pushes every delivery onto a channel
type recordingTarget struct {
	address    string
	deliveries chan delivery
}

func newRecordingTarget(address string) *recordingTarget {
	return &recordingTarget{address: address, deliveries: make(chan delivery, 64)}
}

func (r *recordingTarget) Address() string { return r.address }

func (r *recordingTarget) Deliver(_ context.Context, samples []models.Sample) error {
	r.deliveries <- delivery{at: time.Now(), samples: samples}
	return nil
}

func (r *recordingTarget) next(t *testing.T) delivery {
	t.Helper()
	select {
	case d := <-r.deliveries:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return delivery{}
}

func (r *recordingTarget) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-r.deliveries:
		t.Fatalf("unexpected delivery of %d samples", len(d.samples))
	case <-time.After(wait):
	}
}

func sample(lat float64) models.Sample {
	return models.Sample{Latitude: lat, Longitude: 0, Time: time.Now()}
}

var fastPolicy = subscription.Policy{
	Interval:        100 * time.Millisecond,
	FastestInterval: 100 * time.Millisecond,
	MaxWaitTime:     200 * time.Millisecond,
}

func TestRegistry_DispatchUnregistered(t *testing.T) {
	r := NewRegistry(testLogger())

	err := r.Dispatch("nobody", []models.Sample{sample(1)})
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegistry_DeliversAndPaces(t *testing.T) {
	r := NewRegistry(testLogger())
	target := newRecordingTarget("t")

	if err := r.RegisterUpdates(context.Background(), fastPolicy, target); err != nil {
		t.Fatalf("RegisterUpdates: %v", err)
	}
	defer r.DeregisterUpdates(context.Background(), target)

	if err := r.Dispatch("t", []models.Sample{sample(1)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	first := target.next(t)
	if len(first.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(first.samples))
	}

	// both arrive inside the fastest interval and are delivered together
	r.Dispatch("t", []models.Sample{sample(2)})
	r.Dispatch("t", []models.Sample{sample(3)})
	second := target.next(t)

	if len(second.samples) != 2 {
		t.Errorf("expected the two paced samples in one delivery, got %d", len(second.samples))
	}
	if gap := second.at.Sub(first.at); gap < fastPolicy.FastestInterval-10*time.Millisecond {
		t.Errorf("deliveries %v apart, faster than the %v floor", gap, fastPolicy.FastestInterval)
	}
}

func TestRegistry_BatchingHoldsUntilMaxWait(t *testing.T) {
	r := NewRegistry(testLogger())
	r.batch = true
	target := newRecordingTarget("t")

	if err := r.RegisterUpdates(context.Background(), fastPolicy, target); err != nil {
		t.Fatalf("RegisterUpdates: %v", err)
	}
	defer r.DeregisterUpdates(context.Background(), target)

	start := time.Now()
	r.Dispatch("t", []models.Sample{sample(1)})
	r.Dispatch("t", []models.Sample{sample(2)})

	d := target.next(t)
	if len(d.samples) != 2 {
		t.Errorf("expected one batch of 2, got %d", len(d.samples))
	}
	if waited := d.at.Sub(start); waited < fastPolicy.MaxWaitTime-10*time.Millisecond {
		t.Errorf("batch released after %v, before the %v window", waited, fastPolicy.MaxWaitTime)
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry(testLogger())
	old := newRecordingTarget("same")
	replacement := newRecordingTarget("same")

	r.RegisterUpdates(context.Background(), fastPolicy, old)
	r.RegisterUpdates(context.Background(), fastPolicy, replacement)
	defer r.DeregisterUpdates(context.Background(), replacement)

	r.Dispatch("same", []models.Sample{sample(1)})
	replacement.next(t)
	old.none(t, 50*time.Millisecond)
}

func TestRegistry_Deregister(t *testing.T) {
	r := NewRegistry(testLogger())
	target := newRecordingTarget("t")

	r.RegisterUpdates(context.Background(), fastPolicy, target)
	if !r.Registered("t") {
		t.Fatal("expected registration")
	}

	if err := r.DeregisterUpdates(context.Background(), target); err != nil {
		t.Fatalf("DeregisterUpdates: %v", err)
	}
	if r.Registered("t") {
		t.Error("expected no registration after deregister")
	}
	if err := r.Dispatch("t", []models.Sample{sample(1)}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}

	// deregistering again is harmless
	if err := r.DeregisterUpdates(context.Background(), target); err != nil {
		t.Errorf("second DeregisterUpdates: %v", err)
	}
}

func TestRegistry_DeregisterDropsPending(t *testing.T) {
	r := NewRegistry(testLogger())
	r.batch = true
	target := newRecordingTarget("t")

	r.RegisterUpdates(context.Background(), fastPolicy, target)
	r.Dispatch("t", []models.Sample{sample(1)})
	r.DeregisterUpdates(context.Background(), target)

	target.none(t, fastPolicy.MaxWaitTime+50*time.Millisecond)
}

func TestRegistry_ConcurrentDispatch(t *testing.T) {
	r := NewRegistry(testLogger())
	policy := subscription.Policy{Interval: 10 * time.Millisecond}
	target := newRecordingTarget("t")
	r.RegisterUpdates(context.Background(), policy, target)
	defer r.DeregisterUpdates(context.Background(), target)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Dispatch("t", []models.Sample{sample(float64(i))})
		}(i)
	}
	wg.Wait()

	total := 0
	for total < 10 {
		total += len(target.next(t).samples)
	}
	if total != 10 {
		t.Errorf("expected 10 samples, got %d", total)
	}
}
