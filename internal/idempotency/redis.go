package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces idempotency records in Redis.
const DefaultKeyPrefix = "echospot:idempotency:"

// processingTTL bounds how long a crashed request can hold a reservation.
const processingTTL = 10 * time.Minute

// RedisRepository keeps records as JSON strings that expire on their own,
// so replicas share reservations.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
	expiry time.Duration
}

var _ Repository = (*RedisRepository)(nil)

// NewRedisRepository creates a repository using client. Completed records
// live for expiry; zero selects DefaultExpiry.
func NewRedisRepository(client redis.Cmdable, expiry time.Duration) *RedisRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisRepository{client: client, prefix: DefaultKeyPrefix, expiry: expiry}
}

// Get implements Repository.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	payload, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &record, nil
}

// Reserve implements Repository with SET NX.
func (r *RedisRepository) Reserve(ctx context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	stored := *record
	stored.Status = StatusProcessing

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.prefix+record.Key, payload, processingTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// Complete implements Repository. The record expires after the configured expiry.
func (r *RedisRepository) Complete(ctx context.Context, record *Record) error {
	stored := *record
	stored.Status = StatusCompleted

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	ok, err := r.client.SetXX(ctx, r.prefix+record.Key, payload, r.expiry).Result()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyNotFound
	}
	return nil
}

// Release implements Repository.
func (r *RedisRepository) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// DeleteOlderThan is a no-op: Redis expires records itself.
func (r *RedisRepository) DeleteOlderThan(context.Context, time.Duration) (int64, error) {
	return 0, nil
}
