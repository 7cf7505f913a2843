package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/spatial"
	"github.com/lightquark/maptracker/internal/subscription"
)

// ErrUnavailable is returned while the simulated location source is switched off
var ErrUnavailable = errors.New("location source unavailable")

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// Oracle is re-checked when a registration is made
	Oracle permission.Oracle
	// Origin is where the walk starts
	OriginLat float64
	OriginLon float64
	// SpeedMPS is the average walking speed in meters per second
	SpeedMPS float64
	Seed     int64
	Logger   *slog.Logger
}

// Simulator emits samples from a random walk at the policy interval and
// delivers them in batches bounded by the policy's max wait time. A walk
// picks up where the previous registration for the same address stopped.
type Simulator struct {
	cfg       SimulatorConfig
	registry  *Registry
	available atomic.Bool
	walks     atomic.Int64

	mu        sync.Mutex
	walkers   map[string]*walker
	positions map[string]position
	wg        sync.WaitGroup
}

type walker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type position struct {
	lat, lon, heading float64
}

// NewSimulator creates a simulator provider
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("simulator: permission oracle is required")
	}
	if !spatial.ValidCoordinate(cfg.OriginLat, cfg.OriginLon) {
		return nil, fmt.Errorf("simulator: invalid origin %v, %v", cfg.OriginLat, cfg.OriginLon)
	}
	if cfg.SpeedMPS <= 0 {
		cfg.SpeedMPS = 1.4
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	registry := NewRegistry(cfg.Logger)
	registry.batch = true

	s := &Simulator{
		cfg:       cfg,
		registry:  registry,
		walkers:   make(map[string]*walker),
		positions: make(map[string]position),
	}
	s.available.Store(true)
	return s, nil
}

// SetAvailable switches the simulated location source on or off. New
// registrations fail with ErrUnavailable while it is off.
func (s *Simulator) SetAvailable(available bool) {
	s.available.Store(available)
}

// Registered reports whether address has a live registration
func (s *Simulator) Registered(address string) bool {
	return s.registry.Registered(address)
}

// RegisterUpdates implements subscription.Provider
func (s *Simulator) RegisterUpdates(ctx context.Context, policy subscription.Policy, target subscription.DeliveryTarget) error {
	if !s.cfg.Oracle.HasCapability(permission.FineLocation) {
		return fmt.Errorf("register %s: %w", target.Address(), subscription.ErrPermissionRevoked)
	}
	if !s.available.Load() {
		return fmt.Errorf("register %s: %w", target.Address(), ErrUnavailable)
	}

	if err := s.registry.RegisterUpdates(ctx, policy, target); err != nil {
		return err
	}

	address := target.Address()
	s.stopWalker(address)

	walkCtx, cancel := context.WithCancel(context.Background())
	w := &walker{cancel: cancel, done: make(chan struct{})}
	seed := s.cfg.Seed + s.walks.Add(1)

	s.mu.Lock()
	s.walkers[address] = w
	pos, resumed := s.positions[address]
	s.mu.Unlock()

	if !resumed {
		pos = position{lat: s.cfg.OriginLat, lon: s.cfg.OriginLon, heading: -1}
	}

	s.wg.Add(1)
	go s.walk(walkCtx, w.done, policy, address, seed, pos)
	return nil
}

// DeregisterUpdates implements subscription.Provider
func (s *Simulator) DeregisterUpdates(ctx context.Context, target subscription.DeliveryTarget) error {
	s.stopWalker(target.Address())
	return s.registry.DeregisterUpdates(ctx, target)
}

// Dispatch lets external sources inject samples alongside the walk
func (s *Simulator) Dispatch(address string, samples []models.Sample) error {
	return s.registry.Dispatch(address, samples)
}

// Close stops every walk
func (s *Simulator) Close() {
	s.mu.Lock()
	for addr, w := range s.walkers {
		w.cancel()
		delete(s.walkers, addr)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// stopWalker cancels the walk for address and waits until it has saved its
// last position
func (s *Simulator) stopWalker(address string) {
	s.mu.Lock()
	w, ok := s.walkers[address]
	delete(s.walkers, address)
	s.mu.Unlock()

	if ok {
		w.cancel()
		<-w.done
	}
}

func (s *Simulator) walk(ctx context.Context, done chan struct{}, policy subscription.Policy, address string, seed int64, pos position) {
	defer s.wg.Done()
	defer close(done)

	interval := policy.Interval
	if interval < policy.FastestInterval {
		interval = policy.FastestInterval
	}

	rng := rand.New(rand.NewSource(seed))
	if pos.heading < 0 {
		pos.heading = rng.Float64() * 360
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			heading := pos.heading + rng.NormFloat64()*20
			speed := s.cfg.SpeedMPS * (0.5 + rng.Float64())
			nextLat, nextLon := spatial.DestinationPoint(pos.lat, pos.lon, heading, speed*interval.Seconds())

			sample := models.Sample{
				Latitude:    nextLat,
				Longitude:   nextLon,
				Time:        now,
				Altitude:    40 + rng.NormFloat64(),
				MSLAltitude: 20 + rng.NormFloat64(),
				Accuracy:    float32(3 + rng.Float64()*5),
				Speed:       float32(spatial.HaversineDistance(pos.lat, pos.lon, nextLat, nextLon) / interval.Seconds()),
			}
			heading = math.Mod(heading, 360)
			if heading < 0 {
				heading += 360
			}
			pos = position{lat: nextLat, lon: nextLon, heading: heading}

			s.mu.Lock()
			s.positions[address] = pos
			s.mu.Unlock()

			if err := s.registry.Dispatch(address, []models.Sample{sample}); err != nil {
				return
			}
		}
	}
}
