package fleet

import (
	"maps"
	"slices"
	"sync"

	"github.com/fleetsync/fleetsync/pkg/core"
)

// Store holds the latest configuration and state of every known vehicle.
// Configurations and states arrive independently, so an ID present in one
// map says nothing about the other.
type Store struct {
	mu             sync.RWMutex
	configurations map[int64]core.VehicleConfiguration
	states         map[int64]core.VehicleState
}

func NewStore() *Store {
	return &Store{
		configurations: make(map[int64]core.VehicleConfiguration),
		states:         make(map[int64]core.VehicleState),
	}
}

// Reset empties both maps under one lock.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configurations = make(map[int64]core.VehicleConfiguration)
	s.states = make(map[int64]core.VehicleState)
}

func (s *Store) UpsertConfiguration(c core.VehicleConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configurations[c.ID] = c
}

func (s *Store) UpsertState(st core.VehicleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID] = st
}

func (s *Store) Configuration(id int64) (core.VehicleConfiguration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configurations[id]
	return c, ok
}

func (s *Store) State(id int64) (core.VehicleState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// Counts returns the number of known configurations and states.
func (s *Store) Counts() (configurations, states int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configurations), len(s.states)
}

// Snapshot returns a copy of both maps taken under one lock. Later writes
// to the store are not visible through the returned View.
func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		configurations: maps.Clone(s.configurations),
		states:         maps.Clone(s.states),
	}
}

// View is a read-only point-in-time copy of the store.
type View struct {
	configurations map[int64]core.VehicleConfiguration
	states         map[int64]core.VehicleState
}

// NewView builds a View from explicit maps. The maps are not copied.
func NewView(configurations map[int64]core.VehicleConfiguration, states map[int64]core.VehicleState) View {
	return View{configurations: configurations, states: states}
}

func (v View) Configuration(id int64) (core.VehicleConfiguration, bool) {
	c, ok := v.configurations[id]
	return c, ok
}

func (v View) State(id int64) (core.VehicleState, bool) {
	st, ok := v.states[id]
	return st, ok
}

// StateIDs returns the IDs with a known state, ascending.
func (v View) StateIDs() []int64 {
	return slices.Sorted(maps.Keys(v.states))
}
