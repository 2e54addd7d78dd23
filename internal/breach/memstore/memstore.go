// Package memstore provides an in-memory implementation of breach.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/safespotlabs/geowatch/internal/breach"
	"github.com/safespotlabs/geowatch/internal/geo"
)

// Store holds geofences and breach events in memory. Suitable for
// dev/testing.
type Store struct {
	mu       sync.RWMutex
	fences   map[string]*breach.Geofence
	events   map[string]*breach.Event
	eventIDs []string // insertion order, for stable listing
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		fences: make(map[string]*breach.Geofence),
		events: make(map[string]*breach.Event),
	}
}

// PutGeofence inserts or replaces a geofence. Geofence CRUD belongs to an
// external service; this exists for seeding and tests. A zero ID gets a
// fresh ULID, a zero CreatedAt gets the current time.
func (s *Store) PutGeofence(_ context.Context, gf *breach.Geofence) (*breach.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *gf
	if cp.ID == "" {
		cp.ID = ulid.Make().String()
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.fences[cp.ID] = &cp

	out := cp
	return &out, nil
}

// ListActiveGeofences returns active fences ordered by creation time
// descending. Returns copies.
func (s *Store) ListActiveGeofences(_ context.Context) ([]*breach.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*breach.Geofence, 0, len(s.fences))
	for _, gf := range s.fences {
		if !gf.Active {
			continue
		}
		cp := *gf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// InsertBreach creates a breach event row and returns a copy.
func (s *Store) InsertBreach(_ context.Context, userID int64, geofenceID string, at geo.Point, score int) (*breach.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := &breach.Event{
		ID:         ulid.Make().String(),
		UserID:     userID,
		GeofenceID: geofenceID,
		Location:   at,
		RiskScore:  score,
		AlertSent:  false,
		OccurredAt: time.Now(),
	}
	s.events[ev.ID] = ev
	s.eventIDs = append(s.eventIDs, ev.ID)

	cp := *ev
	return &cp, nil
}

// MarkAlerted flips alert-sent to true. Idempotent; unknown IDs are a
// no-op rather than an error.
func (s *Store) MarkAlerted(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev, ok := s.events[eventID]; ok {
		ev.AlertSent = true
	}
	return nil
}

// GetBreach retrieves a breach event by ID. Returns a copy.
func (s *Store) GetBreach(_ context.Context, eventID string) (*breach.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[eventID]
	if !ok {
		return nil, false, nil
	}
	cp := *ev
	return &cp, true, nil
}

// ListBreachesByUser returns up to limit events for a user, most recent
// first.
func (s *Store) ListBreachesByUser(_ context.Context, userID int64, limit int) ([]*breach.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*breach.Event
	for i := len(s.eventIDs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		ev := s.events[s.eventIDs[i]]
		if ev.UserID != userID {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

// Stats returns the dashboard aggregate.
func (s *Store) Stats(_ context.Context) (*breach.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &breach.Stats{
		TotalGeofences: len(s.fences),
		TotalBreaches:  len(s.events),
	}
	for _, gf := range s.fences {
		if gf.Active {
			st.ActiveGeofences++
		}
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, ev := range s.events {
		if ev.OccurredAt.After(cutoff) {
			st.BreachesLast24h++
		}
	}
	return st, nil
}
