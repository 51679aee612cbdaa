package store

import (
	"sync"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

type Kind string

const (
	KindFleets    Kind = "fleets"
	KindVehicles  Kind = "vehicles"
	KindTelemetry Kind = "telemetry"
	KindOwner     Kind = "owner"
	KindLoading   Kind = "loading"
)

type Op string

const (
	OpSet    Op = "set"
	OpUpsert Op = "upsert"
	OpRemove Op = "remove"
)

// Change describes one committed write. ID is empty for wholesale writes.
type Change struct {
	Kind Kind
	Op   Op
	ID   string
}

// Store is the in-memory cache the views read. Every mutation goes through
// Set, Upsert or Remove; readers get copies.
//
// Subscribers are called after the write is committed, in write order. They
// may read from the Store but must not write to it.
type Store struct {
	writeMu sync.Mutex // serializes write + publish
	mu      sync.RWMutex

	fleets    collection[fleet.Fleet]
	vehicles  collection[fleet.Vehicle]
	telemetry collection[fleet.Telemetry]
	owner     *fleet.Owner
	loading   bool

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

func New() *Store {
	return &Store{subs: make(map[int]func(Change))}
}

// Subscribe registers fn for every committed change and returns a func that
// removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// write applies mutate under the data lock and publishes the change if
// mutate reports one.
func (s *Store) write(change Change, mutate func() bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := mutate()
	s.mu.Unlock()

	if changed {
		s.publish(change)
	}
}

func (s *Store) publish(change Change) {
	s.subMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

func (s *Store) Fleets() []fleet.Fleet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fleets.snapshot()
}

func (s *Store) Vehicles() []fleet.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicles.snapshot()
}

func (s *Store) Telemetry() []fleet.Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.telemetry.snapshot()
}

func (s *Store) Owner() (fleet.Owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owner == nil {
		return fleet.Owner{}, false
	}
	return *s.owner, true
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) SetFleets(fleets []fleet.Fleet) {
	s.write(Change{Kind: KindFleets, Op: OpSet}, func() bool {
		s.fleets.set(fleets)
		return true
	})
}

func (s *Store) UpsertFleet(f fleet.Fleet) {
	s.write(Change{Kind: KindFleets, Op: OpUpsert, ID: f.Key()}, func() bool {
		s.fleets.upsert(f)
		return true
	})
}

// RemoveFleet is a no-op when id is not cached.
func (s *Store) RemoveFleet(id string) {
	s.write(Change{Kind: KindFleets, Op: OpRemove, ID: id}, func() bool {
		return s.fleets.remove(id)
	})
}

func (s *Store) SetVehicles(vehicles []fleet.Vehicle) {
	s.write(Change{Kind: KindVehicles, Op: OpSet}, func() bool {
		s.vehicles.set(vehicles)
		return true
	})
}

func (s *Store) UpsertVehicle(v fleet.Vehicle) {
	s.write(Change{Kind: KindVehicles, Op: OpUpsert, ID: v.Key()}, func() bool {
		s.vehicles.upsert(v)
		return true
	})
}

func (s *Store) RemoveVehicle(id string) {
	s.write(Change{Kind: KindVehicles, Op: OpRemove, ID: id}, func() bool {
		return s.vehicles.remove(id)
	})
}

func (s *Store) SetTelemetry(records []fleet.Telemetry) {
	s.write(Change{Kind: KindTelemetry, Op: OpSet}, func() bool {
		s.telemetry.set(records)
		return true
	})
}

func (s *Store) UpsertTelemetry(t fleet.Telemetry) {
	s.write(Change{Kind: KindTelemetry, Op: OpUpsert, ID: t.Key()}, func() bool {
		s.telemetry.upsert(t)
		return true
	})
}

func (s *Store) RemoveTelemetry(id string) {
	s.write(Change{Kind: KindTelemetry, Op: OpRemove, ID: id}, func() bool {
		return s.telemetry.remove(id)
	})
}

// SetOwner replaces the cached owner profile; nil clears it.
func (s *Store) SetOwner(owner *fleet.Owner) {
	s.write(Change{Kind: KindOwner, Op: OpSet}, func() bool {
		if owner == nil {
			s.owner = nil
			return true
		}
		o := *owner
		s.owner = &o
		return true
	})
}

func (s *Store) SetLoading(loading bool) {
	s.write(Change{Kind: KindLoading, Op: OpSet}, func() bool {
		s.loading = loading
		return true
	})
}

// Reset clears every collection and the owner, as on logout.
func (s *Store) Reset() {
	s.write(Change{Op: OpSet}, func() bool {
		s.fleets.set(nil)
		s.vehicles.set(nil)
		s.telemetry.set(nil)
		s.owner = nil
		s.loading = false
		return true
	})
}
