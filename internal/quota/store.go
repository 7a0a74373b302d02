package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quota:"

// Store is the minimal shared counter capability: get and set with a TTL.
// A missing key reads as zero.
type Store interface {
	Get(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, value int, ttl time.Duration) error
}

// AtomicStore can increment with a ceiling in one round-trip.
type AtomicStore interface {
	Store
	// IncrementCapped adds one to key unless it is already >= limit.
	// It returns the resulting (or unchanged) count and whether it incremented.
	IncrementCapped(ctx context.Context, key string, limit int, ttl time.Duration) (int, bool, error)
	// Decrement subtracts one from key, never going below zero.
	Decrement(ctx context.Context, key string) (int, error)
}

var incrementCappedScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {0, current}
end
current = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, current}
`)

var decrementScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// RedisStore keeps quota counters as plain Redis integers.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ AtomicStore = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, key string) (int, error) {
	n, err := s.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting counter %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value int, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting counter %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IncrementCapped(ctx context.Context, key string, limit int, ttl time.Duration) (int, bool, error) {
	res, err := incrementCappedScript.Run(ctx, s.rdb, []string{key}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("incrementing counter %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("incrementing counter %s: unexpected reply %v", key, res)
	}
	return int(res[1]), res[0] == 1, nil
}

func (s *RedisStore) Decrement(ctx context.Context, key string) (int, error) {
	n, err := decrementScript.Run(ctx, s.rdb, []string{key}).Int()
	if err != nil {
		return 0, fmt.Errorf("decrementing counter %s: %w", key, err)
	}
	return n, nil
}
