package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu    sync.RWMutex
	clock clock.Clock

	// records hold encoded documents so callers never share memory with storage
	records map[recordKey][]byte
	locks   map[recordKey]lock

	failSaves error
	failLoads error
}

type recordKey struct {
	collection string
	id         model.UserID
}

type lock struct {
	owner     string
	expiresAt time.Time
}

// New creates a new in-memory storage instance
func New() *Storage {
	return NewWithClock(clock.New())
}

// NewWithClock creates an in-memory storage whose lock expiry follows clk
func NewWithClock(clk clock.Clock) *Storage {
	return &Storage{
		clock:   clk,
		records: make(map[recordKey][]byte),
		locks:   make(map[recordKey]lock),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) GetRecord(ctx context.Context, collection string, id model.UserID) (*model.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failLoads != nil {
		return nil, s.failLoads
	}
	data, ok := s.records[recordKey{collection, id}]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	var record model.StoredRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Storage) SaveRecord(ctx context.Context, collection string, record *model.StoredRecord, owner string) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves != nil {
		return s.failSaves
	}
	key := recordKey{collection, record.UserID}
	if l, ok := s.locks[key]; ok && l.owner != owner && s.clock.Now().Before(l.expiresAt) {
		return model.ErrRecordLocked
	}
	s.records[key] = data
	return nil
}

func (s *Storage) AcquireLock(ctx context.Context, collection string, id model.UserID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{collection, id}
	now := s.clock.Now()
	if l, ok := s.locks[key]; ok && l.owner != owner && now.Before(l.expiresAt) {
		return model.ErrRecordLocked
	}
	s.locks[key] = lock{owner: owner, expiresAt: now.Add(ttl)}
	return nil
}

func (s *Storage) ReleaseLock(ctx context.Context, collection string, id model.UserID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{collection, id}
	if l, ok := s.locks[key]; ok && l.owner == owner {
		delete(s.locks, key)
	}
	return nil
}

// LockOwner returns the current lock holder, if any (for tests)
func (s *Storage) LockOwner(collection string, id model.UserID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locks[recordKey{collection, id}]
	if !ok || !s.clock.Now().Before(l.expiresAt) {
		return "", false
	}
	return l.owner, true
}

// FailSaves makes every SaveRecord fail with err until reset with nil
func (s *Storage) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaves = err
}

// FailLoads makes every GetRecord fail with err until reset with nil
func (s *Storage) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLoads = err
}

// Close is a no-op for in-memory storage
func (s *Storage) Close() error {
	return nil
}
