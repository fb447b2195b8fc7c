package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisBackend[V any] struct {
	redisClient *redis.Client
	keyPrefix   string
}

// NewRedisBackend stores entries as JSON documents under keyPrefix. Redis
// expiry mirrors the entry TTL so abandoned keys do not accumulate.
func NewRedisBackend[V any](redisClient *redis.Client, keyPrefix string) Backend[V] {
	return &redisBackend[V]{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
	}
}

func (r *redisBackend[V]) Get(ctx context.Context, key string) (*Entry[V], error) {
	val, err := r.redisClient.Get(ctx, r.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	var entry Entry[V]
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return &entry, nil
}

func (r *redisBackend[V]) Set(ctx context.Context, entry Entry[V]) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", entry.Key, err)
	}

	expiration := time.Duration(entry.TTLSeconds) * time.Second
	if err := r.redisClient.Set(ctx, r.keyPrefix+entry.Key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (r *redisBackend[V]) Delete(ctx context.Context, key string) error {
	return r.redisClient.Del(ctx, r.keyPrefix+key).Err()
}

func (r *redisBackend[V]) Clear(ctx context.Context) error {
	iter := r.redisClient.Scan(ctx, 0, r.keyPrefix+"*", 500).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	for start := 0; start < len(keys); start += 500 {
		end := min(start+500, len(keys))
		if err := r.redisClient.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}
	return nil
}
