package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/metrics"
)

// Entry is a cached value with its time-to-live. Entries are written whole and
// never updated in place.
type Entry[V any] struct {
	Key        string    `json:"key"`
	Value      V         `json:"value"`
	TTLSeconds int64     `json:"ttl_seconds"`
	StoredAt   time.Time `json:"stored_at"`
}

// IsValid reports whether now - StoredAt < TTLSeconds.
func (e Entry[V]) IsValid(now time.Time) bool {
	return now.Sub(e.StoredAt) < time.Duration(e.TTLSeconds)*time.Second
}

// Backend stores entries. Get returns nil without error on a miss.
type Backend[V any] interface {
	Get(ctx context.Context, key string) (*Entry[V], error)
	Set(ctx context.Context, entry Entry[V]) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Layer is the get-or-fetch cache in front of a Backend. It knows nothing about
// what the values are or how they are produced.
type Layer[V any] struct {
	name    string
	backend Backend[V]
	clock   clock.Clock
}

func NewLayer[V any](name string, backend Backend[V], clk clock.Clock) *Layer[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Layer[V]{
		name:    name,
		backend: backend,
		clock:   clk,
	}
}

// Lookup returns a valid entry for key, or false. Expired entries count as absent.
func (l *Layer[V]) Lookup(ctx context.Context, key string) (V, bool, error) {
	var zero V

	entry, err := l.backend.Get(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("cache %s get %s: %w", l.name, key, err)
	}
	if entry == nil {
		return zero, false, nil
	}
	if !entry.IsValid(l.clock.Now()) {
		if err := l.backend.Delete(ctx, key); err != nil {
			log.Warnf("Failed to evict expired cache entry %s: %v", key, err)
		}
		return zero, false, nil
	}
	return entry.Value, true, nil
}

// Store overwrites key with value. A non-positive ttl stores nothing.
func (l *Layer[V]) Store(ctx context.Context, key string, ttl time.Duration, value V) error {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 {
		return nil
	}

	err := l.backend.Set(ctx, Entry[V]{
		Key:        key,
		Value:      value,
		TTLSeconds: seconds,
		StoredAt:   l.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("cache %s set %s: %w", l.name, key, err)
	}
	return nil
}

// GetOrFetch returns the cached value for key when still valid, otherwise calls
// producer, stores its result and returns it. The bool reports a cache hit.
// Backend read failures degrade to a miss; a failed write is logged and the
// freshly produced value is still returned.
func (l *Layer[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, producer func(ctx context.Context) (V, error)) (V, bool, error) {
	value, ok, err := l.Lookup(ctx, key)
	if err != nil {
		log.Warnf("⚠️ %v, treating as miss", err)
	}
	if ok {
		metrics.CacheLookupsTotal.WithLabelValues(l.name, "hit").Inc()
		return value, true, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(l.name, "miss").Inc()

	value, err = producer(ctx)
	if err != nil {
		var zero V
		return zero, false, err
	}

	if err := l.Store(ctx, key, ttl, value); err != nil {
		log.Warnf("⚠️ %v", err)
	}
	return value, false, nil
}

func (l *Layer[V]) Clear(ctx context.Context) error {
	return l.backend.Clear(ctx)
}

// Invalidate drops key so the next lookup misses.
func (l *Layer[V]) Invalidate(ctx context.Context, key string) error {
	if err := l.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache %s delete %s: %w", l.name, key, err)
	}
	return nil
}
