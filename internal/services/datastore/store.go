// Package datastore is the in-memory reactive cache of player data shared by
// gameplay features and the sync boundary.
package datastore

import (
	"sync"

	"github.com/mcoot/liveshard/internal/model"
)

// Store holds the live snapshot of every connected player's data.
// There is a single writer at a time; listeners are notified in subscription
// order while the writer still holds the write lock, so every listener sees
// every change in order. Listeners must not write to the store.
type Store struct {
	writeMu sync.Mutex

	mu        sync.RWMutex
	entries   map[model.UserID]model.PlayerData
	nextID    int
	subs      map[model.UserID][]subscriber
	observers []observer
}

type subscriber struct {
	id int
	fn func(model.PlayerData)
}

type observer struct {
	id int
	fn func(model.UserID, *model.PlayerData)
}

// New creates an empty store
func New() *Store {
	return &Store{
		entries: make(map[model.UserID]model.PlayerData),
		subs:    make(map[model.UserID][]subscriber),
	}
}

// Get returns a copy of the snapshot for id
func (s *Store) Get(id model.UserID) (model.PlayerData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[id]
	if !ok {
		return model.PlayerData{}, false
	}
	return data.Clone(), true
}

// IDs returns every id with an entry
func (s *Store) IDs() []model.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]model.UserID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Set replaces the snapshot for id
func (s *Store) Set(id model.UserID, data model.PlayerData) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data = data.Clone()
	s.mu.Lock()
	s.entries[id] = data
	s.mu.Unlock()
	s.notify(id, &data)
}

// Update applies u to the snapshot for id and returns the result.
// It does nothing and returns false if id has no entry.
func (s *Store) Update(id model.UserID, u model.Updater) (model.PlayerData, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	current, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return model.PlayerData{}, false
	}

	next := u(current.Clone())
	s.mu.Lock()
	s.entries[id] = next
	s.mu.Unlock()
	s.notify(id, &next)
	return next.Clone(), true
}

// Delete removes the entry for id
func (s *Store) Delete(id model.UserID) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		s.notify(id, nil)
	}
}

// Subscribe calls fn with every new snapshot for id. Deletions are not
// delivered to per-id subscribers.
func (s *Store) Subscribe(id model.UserID, fn func(model.PlayerData)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	subID := s.nextID
	s.subs[id] = append(s.subs[id], subscriber{id: subID, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[id]
		for i, sub := range subs {
			if sub.id == subID {
				s.subs[id] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(s.subs[id]) == 0 {
			delete(s.subs, id)
		}
	}
}

// Observe calls fn for every change to any entry; data is nil on deletion
func (s *Store) Observe(fn func(id model.UserID, data *model.PlayerData)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	obsID := s.nextID
	s.observers = append(s.observers, observer{id: obsID, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == obsID {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				break
			}
		}
	}
}

// notify must be called with writeMu held
func (s *Store) notify(id model.UserID, data *model.PlayerData) {
	s.mu.RLock()
	subs := append([]subscriber(nil), s.subs[id]...)
	observers := append([]observer(nil), s.observers...)
	s.mu.RUnlock()

	if data != nil {
		for _, sub := range subs {
			sub.fn(data.Clone())
		}
	}
	for _, o := range observers {
		if data == nil {
			o.fn(id, nil)
			continue
		}
		snapshot := data.Clone()
		o.fn(id, &snapshot)
	}
}
