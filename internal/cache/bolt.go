package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var contentBucket = []byte("content")

// BoltBackend keeps entries in a single-file bbolt database so cached pages
// survive between CLI runs. The file is locked by one process at a time.
type BoltBackend[V any] struct {
	db *bolt.DB
}

func OpenBoltBackend[V any](path string) (*BoltBackend[V], error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(contentBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare cache file %s: %w", path, err)
	}

	return &BoltBackend[V]{db: db}, nil
}

func (b *BoltBackend[V]) Get(_ context.Context, key string) (*Entry[V], error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(contentBucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	if data == nil {
		return nil, nil
	}

	var entry Entry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return &entry, nil
}

func (b *BoltBackend[V]) Set(_ context.Context, entry Entry[V]) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", entry.Key, err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(contentBucket).Put([]byte(entry.Key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (b *BoltBackend[V]) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(contentBucket).Delete([]byte(key))
	})
}

func (b *BoltBackend[V]) Clear(_ context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(contentBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(contentBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache file: %w", err)
	}
	return nil
}

func (b *BoltBackend[V]) Close() error {
	return b.db.Close()
}
