package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRedisKeyPrefix namespaces checkpoint keys in a shared Redis.
const defaultRedisKeyPrefix = "saga:checkpoint:"

// RedisCheckpointStore persists checkpoints in Redis. Records are stored
// as JSON strings under prefixed keys, optionally with a TTL so abandoned
// sagas age out.
type RedisCheckpointStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCheckpointStore creates a store over the given client. The
// client may be a single-node client, a cluster client, or a pipeline.
func NewRedisCheckpointStore(client redis.Cmdable) *RedisCheckpointStore {
	return &RedisCheckpointStore{
		client: client,
		prefix: defaultRedisKeyPrefix,
	}
}

// WithKeyPrefix replaces the key prefix. Returns the store for chaining.
func (s *RedisCheckpointStore) WithKeyPrefix(prefix string) *RedisCheckpointStore {
	s.prefix = prefix
	return s
}

// WithTTL sets an expiry on every saved record. Zero keeps records forever.
func (s *RedisCheckpointStore) WithTTL(ttl time.Duration) *RedisCheckpointStore {
	s.ttl = ttl
	return s
}

// Save stores the record as JSON under the prefixed key.
func (s *RedisCheckpointStore) Save(ctx context.Context, key string, record CheckpointRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint %q: %w", key, err)
	}
	return nil
}

// Load retrieves the record for the key, or (nil, nil) when absent.
func (s *RedisCheckpointStore) Load(ctx context.Context, key string) (*CheckpointRecord, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %q: %w", key, err)
	}
	var record CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode checkpoint %q: %w", key, err)
	}
	return &record, nil
}

var _ CheckpointStore = (*RedisCheckpointStore)(nil)
