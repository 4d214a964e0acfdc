package storage

import (
	"context"
	"time"

	"github.com/mcoot/liveshard/internal/model"
)

// Storage is the durable backend for player records.
//
// A record is guarded by a session lock so two shards never hold the same
// record open. AcquireLock succeeds when the lock is free, expired, or already
// held by owner (in which case the TTL is extended). SaveRecord refuses to
// write while another owner holds a live lock.
type Storage interface {
	GetRecord(ctx context.Context, collection string, id model.UserID) (*model.StoredRecord, error)
	SaveRecord(ctx context.Context, collection string, record *model.StoredRecord, owner string) error

	AcquireLock(ctx context.Context, collection string, id model.UserID, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, collection string, id model.UserID, owner string) error

	Close() error
}
