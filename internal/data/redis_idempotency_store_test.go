package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/crew-api/internal/testutil"
)

func TestRedisIdempotencyStore_ReserveRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	store := NewRedisIdempotencyStore(client, "")
	ctx := context.Background()

	t.Run("first reservation wins", func(t *testing.T) {
		bound, created, err := store.Reserve(ctx, "key-1", "job-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "job-1", bound)

		bound, created, err = store.Reserve(ctx, "key-1", "job-2", time.Minute)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "job-1", bound)

		ttl := client.TTL(ctx, defaultIdempotencyPrefix+"key-1").Val()
		assert.True(t, ttl > 0 && ttl <= time.Minute)
	})

	t.Run("release frees the key", func(t *testing.T) {
		require.NoError(t, store.Release(ctx, "key-1"))

		bound, created, err := store.Reserve(ctx, "key-1", "job-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "job-3", bound)
	})

	t.Run("replace only moves the expected binding", func(t *testing.T) {
		swapped, err := store.Replace(ctx, "key-1", "job-stale", "job-4", time.Minute)
		require.NoError(t, err)
		assert.False(t, swapped)

		swapped, err = store.Replace(ctx, "key-1", "job-3", "job-4", time.Minute)
		require.NoError(t, err)
		assert.True(t, swapped)

		bound, created, err := store.Reserve(ctx, "key-1", "job-5", time.Minute)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "job-4", bound)

		ttl := client.TTL(ctx, defaultIdempotencyPrefix+"key-1").Val()
		assert.True(t, ttl > 0 && ttl <= time.Minute)

		swapped, err = store.Replace(ctx, "absent", "job-3", "job-4", time.Minute)
		require.NoError(t, err)
		assert.False(t, swapped)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, store.Health(ctx))
	})
}

func TestRedisIdempotencyStore_ConcurrentReserve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	store := NewRedisIdempotencyStore(client, "test:idem:")
	ctx := context.Background()

	const callers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		bound   = make(map[string]struct{})
	)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, created, err := store.Reserve(ctx, "shared", "job-"+string(rune('a'+i)), time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if created {
				winners++
			}
			bound[id] = struct{}{}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Len(t, bound, 1)
}
