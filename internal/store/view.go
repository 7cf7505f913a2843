package store

import (
	"fmt"

	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/observable"
)

// View is a live query over the most recent records, newest first. It is
// refreshed after every committed mutation.
type View struct {
	limit int
	cell  *observable.Value[[]models.LocationRecord]
	store *Store
}

// Query returns a view of the limit most recently timestamped records.
// A non-positive limit selects DefaultQueryLimit. The initial contents are
// read from the committed state without waiting for queued writes.
// Returns ErrClosed once the store is closed.
func (s *Store) Query(limit int) (*View, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	v := &View{
		limit: limit,
		cell:  observable.NewValue[[]models.LocationRecord](nil),
		store: s,
	}

	// Register before reading so a commit racing with the read is never missed.
	// Registering under mu means Close either sees this view or rejects it.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.viewsMu.Lock()
	s.views[v] = struct{}{}
	s.viewsMu.Unlock()
	s.mu.Unlock()

	version := v.cell.Version()
	records, err := s.repo.Recent(limit)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	// a refresh from the worker is at least as new as this read
	v.cell.SetIfVersion(version, records)

	return v, nil
}

// Limit returns the maximum number of records the view holds
func (v *View) Limit() int {
	return v.limit
}

// Records returns the current contents
func (v *View) Records() []models.LocationRecord {
	return v.cell.Get()
}

// Subscribe receives the current contents and every later change.
// Call cancel to unsubscribe.
func (v *View) Subscribe() (<-chan []models.LocationRecord, func()) {
	return v.cell.Subscribe()
}

// Close detaches the view from the store and closes its subscriptions
func (v *View) Close() {
	v.store.viewsMu.Lock()
	delete(v.store.views, v)
	v.store.viewsMu.Unlock()
	v.cell.Close()
}
