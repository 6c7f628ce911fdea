package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces pending summary keys.
const DefaultKeyPrefix = "echospot:summary:"

// claimScript deletes and returns the entry only when ARGV[1] may claim it.
// It replies 0 for a missing key and 1 for an entry owned by someone else.
var claimScript = redis.NewScript(`
local payload = redis.call('GET', KEYS[1])
if not payload then
  return 0
end
local owner = cjson.decode(payload)['username']
if owner and owner ~= '' and owner ~= ARGV[1] then
  return 1
end
redis.call('DEL', KEYS[1])
return payload
`)

// RedisStore keeps pending summaries in Redis with SET EX and a claim script
// that checks ownership and deletes in one step.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store using client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Put stores e as JSON under token for ttl.
func (s *RedisStore) Put(ctx context.Context, token string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	e.ExpiresAt = time.Now().Add(ttl).UTC()
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}
	return nil
}

// Claim atomically checks ownership, then reads and deletes the entry under token.
func (s *RedisStore) Claim(ctx context.Context, token, username string) (*Entry, error) {
	reply, err := claimScript.Run(ctx, s.client, []string{s.prefix + token}, username).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim summary: %w", err)
	}

	var payload string
	switch v := reply.(type) {
	case int64:
		if v == 1 {
			return nil, ErrNotOwner
		}
		return nil, ErrNotFound
	case string:
		payload = v
	default:
		return nil, fmt.Errorf("unexpected claim reply %T", reply)
	}

	var e Entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &e, nil
}
