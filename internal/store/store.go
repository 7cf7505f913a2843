// Package store keeps location records durable. Every mutation goes through a
// single FIFO queue drained by one worker goroutine; reads go straight to the
// database and never wait for the queue.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/observable"
	"github.com/lightquark/maptracker/internal/repository"
)

// DefaultQueryLimit is the number of records served to the view layer
const DefaultQueryLimit = 1000

var (
	// ErrUpdateTargetMissing is reported when an update names an id that is not stored.
	ErrUpdateTargetMissing = errors.New("update target missing")
	// ErrDuplicateID is reported when an add reuses the id of a stored record.
	// The whole batch is rejected.
	ErrDuplicateID = errors.New("duplicate location id")
	// ErrStorageUnavailable wraps any failure of the underlying database.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrClosed is returned for writes submitted after Close.
	ErrClosed = errors.New("store closed")
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("location not found")
)

// Repository is the persistence the store serializes writes against
type Repository interface {
	InsertBatch(records []models.LocationRecord) error
	Update(record models.LocationRecord) error
	Recent(limit int) ([]models.LocationRecord, error)
	GetByID(id uuid.UUID) (models.LocationRecord, error)
	DeleteAll() error
}

// Operation names used in logs, metrics and failures.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpClear  = "clear"
	OpFlush  = "flush"
)

// WriteFailure describes a mutation that could not be stored
type WriteFailure struct {
	Op      string
	Records int
	Err     error
	At      time.Time
}

// Config configures a Store.
type Config struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Store is the durable, queryable collection of location records
type Store struct {
	repo    Repository
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Write
	closed bool
	done   chan struct{}

	viewsMu sync.Mutex
	views   map[*View]struct{}

	failures    *observable.Feed[WriteFailure]
	lostUpdates atomic.Uint64
}

// New creates a store over repo and starts its write worker
func New(repo Repository, cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store{
		repo:     repo,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
		views:    make(map[*View]struct{}),
		failures: observable.NewFeed[WriteFailure](),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.run()
	return s
}

// Add enqueues one insert
func (s *Store) Add(record models.LocationRecord) *Write {
	return s.enqueue(OpAdd, []models.LocationRecord{record})
}

// AddBatch enqueues the records as a single atomic insert. A record whose id
// is already stored rejects the batch with ErrDuplicateID, which is reported
// on the handle but not published as a failure.
func (s *Store) AddBatch(records []models.LocationRecord) *Write {
	batch := make([]models.LocationRecord, len(records))
	copy(batch, records)
	return s.enqueue(OpAdd, batch)
}

// Update enqueues a replace-by-id. A missing id completes the write with
// ErrUpdateTargetMissing; it is logged and counted but not published as a failure.
func (s *Store) Update(record models.LocationRecord) *Write {
	return s.enqueue(OpUpdate, []models.LocationRecord{record})
}

// Clear enqueues removal of every record
func (s *Store) Clear() *Write {
	return s.enqueue(OpClear, nil)
}

// Flush waits until every write submitted before it has been applied
func (s *Store) Flush(ctx context.Context) error {
	return s.enqueue(OpFlush, nil).Wait(ctx)
}

// Get reads one record by id from the committed state
func (s *Store) Get(id uuid.UUID) (models.LocationRecord, error) {
	rec, err := s.repo.GetByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.LocationRecord{}, ErrNotFound
	}
	if err != nil {
		return models.LocationRecord{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return rec, nil
}

// Failures subscribes to write failures. Call cancel to unsubscribe.
func (s *Store) Failures() (<-chan WriteFailure, func()) {
	return s.failures.Subscribe()
}

// LostUpdates returns how many updates targeted a missing record
func (s *Store) LostUpdates() uint64 {
	return s.lostUpdates.Load()
}

// Pending returns the number of queued mutations
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops accepting writes, drains the queue and stops the worker.
// Live views and failure subscriptions are closed afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	<-s.done

	s.viewsMu.Lock()
	for v := range s.views {
		delete(s.views, v)
		v.cell.Close()
	}
	s.viewsMu.Unlock()
	s.failures.Close()
	return nil
}

func (s *Store) enqueue(op string, records []models.LocationRecord) *Write {
	w := newWrite(op, records)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.complete(ErrClosed)
		return w
	}
	s.queue = append(s.queue, w)
	depth := len(s.queue)
	s.cond.Signal()
	s.mu.Unlock()

	s.metrics.setQueueDepth(depth)
	return w
}

// next blocks until a write is queued. It reports false once the store is
// closed and the queue has drained.
func (s *Store) next() (*Write, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 {
		if s.closed {
			return nil, 0, false
		}
		s.cond.Wait()
	}

	w := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return w, len(s.queue), true
}

func (s *Store) run() {
	defer close(s.done)
	for {
		w, depth, ok := s.next()
		if !ok {
			return
		}
		s.metrics.setQueueDepth(depth)
		w.complete(s.apply(w))
	}
}

func (s *Store) apply(w *Write) error {
	if w.op == OpFlush {
		return nil
	}

	start := time.Now()
	var err error
	switch w.op {
	case OpAdd:
		err = s.repo.InsertBatch(w.records)
	case OpUpdate:
		err = s.repo.Update(w.records[0])
	case OpClear:
		err = s.repo.DeleteAll()
	}
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		s.metrics.observeWrite(w.op, StatusSuccess, elapsed)
		if w.op == OpAdd {
			s.metrics.addRecords(len(w.records))
		}
		s.refreshViews()
		return nil

	case w.op == OpUpdate && errors.Is(err, repository.ErrNotFound):
		s.metrics.observeWrite(w.op, StatusMissing, elapsed)
		s.metrics.incLostUpdates()
		s.lostUpdates.Add(1)
		s.logger.Warn("update target missing", "id", w.records[0].ID)
		return fmt.Errorf("%w: %s", ErrUpdateTargetMissing, w.records[0].ID)

	case w.op == OpAdd && errors.Is(err, repository.ErrDuplicateID):
		s.metrics.observeWrite(w.op, StatusConflict, elapsed)
		s.logger.Warn("rejected batch with duplicate id", "records", len(w.records), "error", err)
		return fmt.Errorf("%w: %w", ErrDuplicateID, err)

	default:
		s.metrics.observeWrite(w.op, StatusFailure, elapsed)
		err = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		s.logger.Error("store write failed", "op", w.op, "records", len(w.records), "error", err)
		s.failures.Publish(WriteFailure{
			Op:      w.op,
			Records: len(w.records),
			Err:     err,
			At:      time.Now(),
		})
		return err
	}
}

func (s *Store) refreshViews() {
	s.viewsMu.Lock()
	views := make([]*View, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	s.viewsMu.Unlock()

	// views sharing a limit share one read
	byLimit := make(map[int][]models.LocationRecord)
	for _, v := range views {
		records, ok := byLimit[v.limit]
		if !ok {
			var err error
			records, err = s.repo.Recent(v.limit)
			if err != nil {
				s.logger.Error("failed to refresh location view", "limit", v.limit, "error", err)
				continue
			}
			byLimit[v.limit] = records
		}
		v.cell.Set(records)
	}
}

// Write is the handle of one queued mutation
type Write struct {
	op      string
	records []models.LocationRecord
	done    chan struct{}
	err     error
}

func newWrite(op string, records []models.LocationRecord) *Write {
	return &Write{op: op, records: records, done: make(chan struct{})}
}

func (w *Write) complete(err error) {
	w.err = err
	close(w.done)
}

// Op returns the operation name
func (w *Write) Op() string {
	return w.op
}

// Done is closed once the write has been applied or has failed
func (w *Write) Done() <-chan struct{} {
	return w.done
}

// Err returns the outcome. It is only meaningful after Done is closed.
func (w *Write) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Wait blocks until the write completes or ctx ends
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
