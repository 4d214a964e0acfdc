package redis

import (
	"fmt"

	"github.com/mcoot/liveshard/internal/model"
)

// recordKey returns the Redis key for a stored record
func (s *Storage) recordKey(collection string, id model.UserID) string {
	return fmt.Sprintf("%s:record:%s:%d", s.cfg.KeyPrefix, collection, id)
}

// lockKey returns the Redis key holding the session lock for a record
func (s *Storage) lockKey(collection string, id model.UserID) string {
	return fmt.Sprintf("%s:lock:%s:%d", s.cfg.KeyPrefix, collection, id)
}
