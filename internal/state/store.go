package state

import (
	"sync"
	"time"

	"github.com/five82/tracksync/internal/tracking"
)

const defaultAlertLimit = 200

// Snapshot represents the latest live view available to consumers.
type Snapshot struct {
	Animals         map[string]tracking.Animal
	Alerts          []tracking.Alert // oldest first
	Backend         tracking.StateChange
	HasBackendState bool
	LastUpdated     time.Time
}

// AnimalCount returns the number of tracked animals.
func (s Snapshot) AnimalCount() int {
	return len(s.Animals)
}

// Store coordinates concurrent updates to the live view.
type Store struct {
	mu         sync.RWMutex
	animals    map[string]tracking.Animal
	alerts     []tracking.Alert
	seen       map[string]struct{}
	backend    tracking.StateChange
	hasBackend bool
	updated    time.Time

	// AlertLimit bounds retained alerts. Zero uses 200.
	AlertLimit int
}

// ReplaceAnimals discards the current records and installs animals. Used for
// full snapshots.
func (s *Store) ReplaceAnimals(animals []tracking.Animal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.animals = make(map[string]tracking.Animal, len(animals))
	for _, a := range animals {
		s.animals[a.ID()] = a.Clone()
	}
	s.updated = time.Now()
}

// MergeAnimals merges each record into the existing one with the same id.
// Fields missing from an update keep their previous value; unknown ids are
// inserted.
func (s *Store) MergeAnimals(animals []tracking.Animal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.animals == nil {
		s.animals = make(map[string]tracking.Animal, len(animals))
	}
	for _, update := range animals {
		id := update.ID()
		if existing, ok := s.animals[id]; ok {
			s.animals[id] = existing.Merge(update)
		} else {
			s.animals[id] = update.Clone()
		}
	}
	s.updated = time.Now()
}

// AddAlert records an alert unless one with the same key is already
// retained. It reports whether the alert was new.
func (s *Store) AddAlert(alert tracking.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	key := alert.Key()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.alerts = append(s.alerts, alert)

	limit := s.AlertLimit
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	if over := len(s.alerts) - limit; over > 0 {
		for _, old := range s.alerts[:over] {
			delete(s.seen, old.Key())
		}
		s.alerts = append([]tracking.Alert(nil), s.alerts[over:]...)
	}
	s.updated = time.Now()
	return true
}

// SetBackendState records the most recent backend state change.
func (s *Store) SetBackendState(change tracking.StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = change
	s.hasBackend = true
	s.updated = time.Now()
}

// Animal returns a copy of one record.
func (s *Store) Animal(id string) (tracking.Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.animals[id]
	return a.Clone(), ok
}

// Snapshot returns a copy of the current view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Animals:         make(map[string]tracking.Animal, len(s.animals)),
		Backend:         s.backend,
		HasBackendState: s.hasBackend,
		LastUpdated:     s.updated,
	}
	for id, a := range s.animals {
		snap.Animals[id] = a.Clone()
	}
	if len(s.alerts) > 0 {
		snap.Alerts = make([]tracking.Alert, len(s.alerts))
		copy(snap.Alerts, s.alerts)
	}
	return snap
}
