package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryIsValid(t *testing.T) {
	storedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry[string]{Key: "k", Value: "v", TTLSeconds: 60, StoredAt: storedAt}

	assert.True(t, entry.IsValid(storedAt))
	assert.True(t, entry.IsValid(storedAt.Add(59*time.Second)))
	assert.False(t, entry.IsValid(storedAt.Add(60*time.Second)))
	assert.False(t, entry.IsValid(storedAt.Add(61*time.Second)))
}

func TestGetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		clk := clock.NewMock()
		layer := NewLayer("test", NewMemoryBackend[string](), clk)

		calls := 0
		producer := func(context.Context) (string, error) {
			calls++
			return "payload", nil
		}

		v, hit, err := layer.GetOrFetch(ctx, "src:url", time.Minute, producer)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "payload", v)

		v, hit, err = layer.GetOrFetch(ctx, "src:url", time.Minute, producer)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "payload", v)
		assert.Equal(t, 1, calls)
	})

	t.Run("ttl boundary", func(t *testing.T) {
		clk := clock.NewMock()
		layer := NewLayer("test", NewMemoryBackend[int](), clk)

		calls := 0
		producer := func(context.Context) (int, error) {
			calls++
			return calls, nil
		}

		_, _, err := layer.GetOrFetch(ctx, "k", 10*time.Second, producer)
		require.NoError(t, err)

		clk.Add(9 * time.Second)
		v, hit, err := layer.GetOrFetch(ctx, "k", 10*time.Second, producer)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, 1, v)

		clk.Add(2 * time.Second)
		v, hit, err = layer.GetOrFetch(ctx, "k", 10*time.Second, producer)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 2, v)
	})

	t.Run("producer error is not cached", func(t *testing.T) {
		layer := NewLayer("test", NewMemoryBackend[string](), clock.NewMock())
		boom := errors.New("boom")

		_, _, err := layer.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (string, error) {
			return "", boom
		})
		assert.ErrorIs(t, err, boom)

		_, ok, err := layer.Lookup(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero ttl never stores", func(t *testing.T) {
		layer := NewLayer("test", NewMemoryBackend[string](), clock.NewMock())
		calls := 0
		producer := func(context.Context) (string, error) {
			calls++
			return "x", nil
		}

		_, _, _ = layer.GetOrFetch(ctx, "k", 0, producer)
		_, _, _ = layer.GetOrFetch(ctx, "k", 0, producer)
		assert.Equal(t, 2, calls)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer("test", NewMemoryBackend[string](), clock.NewMock())

	require.NoError(t, layer.Store(ctx, "a", time.Hour, "1"))
	require.NoError(t, layer.Clear(ctx))

	_, ok, err := layer.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntryJSONShape(t *testing.T) {
	entry := Entry[string]{Key: "k", Value: "v", TTLSeconds: 5, StoredAt: time.Unix(0, 0).UTC()}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k","value":"v","ttl_seconds":5,"stored_at":"1970-01-01T00:00:00Z"}`, string(data))
}
