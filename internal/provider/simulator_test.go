package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/spatial"
	"github.com/lightquark/maptracker/internal/subscription"
)

func newTestSimulator(t *testing.T, grants *permission.Grants) *Simulator {
	t.Helper()
	sim, err := NewSimulator(SimulatorConfig{
		Oracle:    grants,
		OriginLat: 59.399750,
		OriginLon: 24.659275,
		SpeedMPS:  1.4,
		Seed:      42,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	t.Cleanup(sim.Close)
	return sim
}

var walkPolicy = subscription.Policy{
	Interval:    10 * time.Millisecond,
	MaxWaitTime: 50 * time.Millisecond,
}

func TestSimulator_WalksAndBatches(t *testing.T) {
	sim := newTestSimulator(t, permission.NewGrants(permission.Required...))
	target := newRecordingTarget("walk")

	if err := sim.RegisterUpdates(context.Background(), walkPolicy, target); err != nil {
		t.Fatalf("RegisterUpdates: %v", err)
	}

	d := target.next(t)
	if len(d.samples) == 0 {
		t.Fatal("expected samples")
	}
	for _, s := range d.samples {
		if !spatial.ValidCoordinate(s.Latitude, s.Longitude) {
			t.Errorf("invalid simulated coordinate %v, %v", s.Latitude, s.Longitude)
		}
		// a short walk stays close to the origin
		if dist := spatial.HaversineDistance(59.399750, 24.659275, s.Latitude, s.Longitude); dist > 1000 {
			t.Errorf("sample %v m from origin", dist)
		}
	}

	if err := sim.DeregisterUpdates(context.Background(), target); err != nil {
		t.Fatalf("DeregisterUpdates: %v", err)
	}
	if sim.registry.Registered("walk") {
		t.Error("expected registration removed")
	}
}

func TestSimulator_RefreshContinuesWalk(t *testing.T) {
	sim := newTestSimulator(t, permission.NewGrants(permission.Required...))

	first := newRecordingTarget("walk")
	if err := sim.RegisterUpdates(context.Background(), walkPolicy, first); err != nil {
		t.Fatalf("RegisterUpdates: %v", err)
	}
	d := first.next(t)
	start := d.samples[0]
	last := d.samples[len(d.samples)-1]

	// same address, so this replaces the walk above
	second := newRecordingTarget("walk")
	if err := sim.RegisterUpdates(context.Background(), walkPolicy, second); err != nil {
		t.Fatalf("RegisterUpdates: %v", err)
	}
	resumed := second.next(t).samples[0]

	if resumed.Latitude == start.Latitude && resumed.Longitude == start.Longitude {
		t.Error("refresh replayed the walk from the origin")
	}
	if dist := spatial.HaversineDistance(last.Latitude, last.Longitude, resumed.Latitude, resumed.Longitude); dist > 5 {
		t.Errorf("refreshed walk jumped %v m from the last sample", dist)
	}
}

func TestSimulator_RevokedFineLocation(t *testing.T) {
	grants := permission.NewGrants(permission.CoarseLocation, permission.BackgroundLocation)
	sim := newTestSimulator(t, grants)

	err := sim.RegisterUpdates(context.Background(), walkPolicy, newRecordingTarget("walk"))
	if !errors.Is(err, subscription.ErrPermissionRevoked) {
		t.Fatalf("expected ErrPermissionRevoked, got %v", err)
	}
	if sim.registry.Registered("walk") {
		t.Error("revoked registration must not be kept")
	}
}

func TestSimulator_Unavailable(t *testing.T) {
	sim := newTestSimulator(t, permission.NewGrants(permission.Required...))
	sim.SetAvailable(false)

	err := sim.RegisterUpdates(context.Background(), walkPolicy, newRecordingTarget("walk"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	sim.SetAvailable(true)
	target := newRecordingTarget("walk")
	if err := sim.RegisterUpdates(context.Background(), walkPolicy, target); err != nil {
		t.Fatalf("RegisterUpdates after recovery: %v", err)
	}
	target.next(t)
}

func TestSimulator_InvalidOrigin(t *testing.T) {
	_, err := NewSimulator(SimulatorConfig{
		Oracle:    permission.NewGrants(),
		OriginLat: 95,
	})
	if err == nil {
		t.Error("expected error for invalid origin")
	}
}
