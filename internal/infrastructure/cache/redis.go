package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotKey is the Redis key holding the cache snapshot.
const DefaultSnapshotKey = "avatarrelay:cache"

// RedisSnapshotStore implements repository.SnapshotStore by keeping the whole
// snapshot as one JSON document under a single Redis key.
// Expiry is handled by the response cache, so the key itself never expires.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

// Compile-time verification that RedisSnapshotStore implements repository.SnapshotStore.
var _ repository.SnapshotStore = (*RedisSnapshotStore)(nil)

// NewRedisSnapshotStore creates a new Redis-backed snapshot store.
func NewRedisSnapshotStore(client *redis.Client, key string) *RedisSnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshotStore{
		client: client,
		key:    key,
	}
}

// Load reads the snapshot from Redis.
// A missing key yields an empty snapshot without error.
func (s *RedisSnapshotStore) Load(ctx context.Context) (model.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.NewSnapshot(), nil
		}
		return model.NewSnapshot(), fmt.Errorf("redis get: %w", err)
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return model.NewSnapshot(), fmt.Errorf("%w: redis key %s: %v", repository.ErrCorruptSnapshot, s.key, err)
	}
	return snap, nil
}

// Save replaces the stored snapshot.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
