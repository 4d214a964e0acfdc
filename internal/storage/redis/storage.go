package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/storage"
)

// Lock scripts run server-side so check-and-set is atomic across shards.
var (
	// KEYS[1] lock, ARGV[1] owner, ARGV[2] ttl ms
	acquireScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder == false or holder == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

	// KEYS[1] lock, ARGV[1] owner
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	// KEYS[1] lock, KEYS[2] record, ARGV[1] owner, ARGV[2] data, ARGV[3] ttl ms (0 for none)
	saveScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if holder ~= false and holder ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) GetRecord(ctx context.Context, collection string, id model.UserID) (*model.StoredRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
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

	keys := []string{s.lockKey(collection, record.UserID), s.recordKey(collection, record.UserID)}
	ok, err := saveScript.Run(ctx, s.client, keys, owner, data, s.cfg.RecordTTL.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return model.ErrRecordLocked
	}
	return nil
}

func (s *Storage) AcquireLock(ctx context.Context, collection string, id model.UserID, owner string, ttl time.Duration) error {
	ok, err := acquireScript.Run(ctx, s.client, []string{s.lockKey(collection, id)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return model.ErrRecordLocked
	}
	return nil
}

func (s *Storage) ReleaseLock(ctx context.Context, collection string, id model.UserID, owner string) error {
	return releaseScript.Run(ctx, s.client, []string{s.lockKey(collection, id)}, owner).Err()
}
