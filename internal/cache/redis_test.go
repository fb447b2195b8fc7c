package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	storedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("miss", func(t *testing.T) {
		_, rdb := newMiniRedis(t)
		backend := NewRedisBackend[string](rdb, "content:")

		entry, err := backend.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("set and get with expiry", func(t *testing.T) {
		mr, rdb := newMiniRedis(t)
		backend := NewRedisBackend[string](rdb, "content:")

		require.NoError(t, backend.Set(ctx, Entry[string]{Key: "k", Value: "v", TTLSeconds: 60, StoredAt: storedAt}))
		assert.True(t, mr.Exists("content:k"))
		assert.Equal(t, 60*time.Second, mr.TTL("content:k"))

		entry, err := backend.Get(ctx, "k")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "v", entry.Value)
		assert.Equal(t, int64(60), entry.TTLSeconds)
		assert.True(t, entry.StoredAt.Equal(storedAt))

		mr.FastForward(61 * time.Second)
		entry, err = backend.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("delete", func(t *testing.T) {
		mr, rdb := newMiniRedis(t)
		backend := NewRedisBackend[string](rdb, "content:")

		require.NoError(t, backend.Set(ctx, Entry[string]{Key: "k", Value: "v", TTLSeconds: 60, StoredAt: storedAt}))
		require.NoError(t, backend.Delete(ctx, "k"))
		assert.False(t, mr.Exists("content:k"))
	})

	t.Run("clear only touches its prefix", func(t *testing.T) {
		mr, rdb := newMiniRedis(t)
		backend := NewRedisBackend[string](rdb, "content:")

		for _, key := range []string{"a", "b", "c"} {
			require.NoError(t, backend.Set(ctx, Entry[string]{Key: key, Value: key, TTLSeconds: 60, StoredAt: storedAt}))
		}
		require.NoError(t, mr.Set("other:key", "keep"))

		require.NoError(t, backend.Clear(ctx))

		assert.Equal(t, []string{"other:key"}, mr.Keys())
		entry, err := backend.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("layer over redis", func(t *testing.T) {
		_, rdb := newMiniRedis(t)
		layer := NewLayer("test", NewRedisBackend[string](rdb, "content:"), nil)

		calls := 0
		producer := func(context.Context) (string, error) {
			calls++
			return "payload", nil
		}

		for i := 0; i < 2; i++ {
			v, _, err := layer.GetOrFetch(ctx, "src:url", time.Minute, producer)
			require.NoError(t, err)
			assert.Equal(t, "payload", v)
		}
		assert.Equal(t, 1, calls)
	})
}
