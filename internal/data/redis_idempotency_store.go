package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/crew-api/internal/core"
)

const (
	defaultIdempotencyPrefix = "crew:idempotency:"
	// reserveAttempts bounds retries when a competing key expires between SET NX and GET.
	reserveAttempts = 3
)

// replaceScript sets KEYS[1] to ARGV[2] with a PX of ARGV[3] only while it holds ARGV[1].
var replaceScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// RedisIdempotencyStore implements core.IdempotencyStore using Redis SET NX with a TTL.
// Bindings outlive the in-memory job store across restarts, so callers must confirm the
// bound job still exists before replaying it.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

var _ core.IdempotencyStore = (*RedisIdempotencyStore)(nil)

// NewRedisIdempotencyStore creates a store with the given Redis client. An empty prefix
// uses the default key namespace.
func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string) *RedisIdempotencyStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

// Reserve atomically binds key to jobID unless a binding already exists.
func (r *RedisIdempotencyStore) Reserve(
	ctx context.Context,
	key, jobID string,
	ttl time.Duration,
) (string, bool, error) {
	if key == "" {
		return "", false, ErrIdempotencyKeyRequired
	}
	if jobID == "" {
		return "", false, ErrJobIDRequired
	}

	// SETNX with a separate EXPIRE is not atomic; SET with NX and TTL is.
	actualTTL := ttl
	if actualTTL <= 0 {
		actualTTL = time.Second
	}

	redisKey := r.prefix + key
	for range reserveAttempts {
		status, err := r.client.SetArgs(ctx, redisKey, jobID, redis.SetArgs{Mode: "NX", TTL: actualTTL}).Result()
		switch {
		case err == nil && status == "OK":
			return jobID, true, nil
		case err != nil && !errors.Is(err, redis.Nil):
			return "", false, fmt.Errorf("redis SET NX: %w", err)
		}

		existing, err := r.client.Get(ctx, redisKey).Result()
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", false, fmt.Errorf("redis get: %w", err)
		}
		// The competing binding expired in between; try to claim it again.
	}
	return "", false, fmt.Errorf("reserve idempotency key %q: too much contention", key)
}

// Replace atomically rebinds key from oldJobID to newJobID.
func (r *RedisIdempotencyStore) Replace(
	ctx context.Context,
	key, oldJobID, newJobID string,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, ErrIdempotencyKeyRequired
	}
	if newJobID == "" {
		return false, ErrJobIDRequired
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	swapped, err := replaceScript.Run(ctx, r.client, []string{r.prefix + key},
		oldJobID, newJobID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis replace: %w", err)
	}
	return swapped == 1, nil
}

// Release deletes the binding for key.
func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (r *RedisIdempotencyStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
