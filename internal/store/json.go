package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/domain"
)

const documentVersion = 1

// document is the on-disk layout. Deleting the file forces a cold rebuild.
type document struct {
	Version     int                            `json:"version"`
	LastFetched time.Time                      `json:"lastFetched"`
	TTLHours    int                            `json:"ttlHours"`
	Catalogs    map[string]*domain.CatalogData `json:"catalogs"`
}

type jsonStore struct {
	path     string
	ttlHours int
	clock    clock.Clock

	mu     sync.RWMutex
	doc    *document
	loaded bool
}

// NewJSONStore keeps the whole store in one JSON document at path. The file is
// read lazily on first use and rewritten atomically on every mutation.
func NewJSONStore(path string, ttlHours int, clk clock.Clock) Store {
	if clk == nil {
		clk = clock.New()
	}
	return &jsonStore{
		path:     path,
		ttlHours: ttlHours,
		clock:    clk,
	}
}

func (s *jsonStore) ttl() time.Duration {
	return time.Duration(s.ttlHours) * time.Hour
}

func (s *jsonStore) ensureLoaded() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	doc, err := s.read()
	if err != nil {
		return err
	}
	s.doc = doc
	s.loaded = true
	return nil
}

func (s *jsonStore) empty() *document {
	return &document{
		Version:  documentVersion,
		TTLHours: s.ttlHours,
		Catalogs: make(map[string]*domain.CatalogData),
	}
}

func (s *jsonStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog store %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warnf("⚠️ Catalog store %s is corrupt, starting empty: %v", s.path, err)
		return s.empty(), nil
	}
	if doc.Version != documentVersion {
		log.Warnf("⚠️ Catalog store %s has version %d, expected %d, starting empty", s.path, doc.Version, documentVersion)
		return s.empty(), nil
	}
	if doc.Catalogs == nil {
		doc.Catalogs = make(map[string]*domain.CatalogData)
	}
	doc.TTLHours = s.ttlHours

	log.Debugf("Loaded %d catalogs from %s", len(doc.Catalogs), s.path)
	return &doc, nil
}

// write replaces the file through a temp file in the same directory and a rename.
func (s *jsonStore) write(doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode catalog store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace catalog store %s: %w", s.path, err)
	}
	return nil
}

func (s *jsonStore) Get(_ context.Context, catalogID string) (*domain.CatalogData, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Catalogs[catalogID], nil
}

func (s *jsonStore) Put(_ context.Context, catalog *domain.CatalogData) error {
	if catalog == nil || catalog.CatalogID == "" {
		return fmt.Errorf("cannot store catalog without id")
	}
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &document{
		Version:     documentVersion,
		LastFetched: s.clock.Now(),
		TTLHours:    s.ttlHours,
		Catalogs:    make(map[string]*domain.CatalogData, len(s.doc.Catalogs)+1),
	}
	for id, c := range s.doc.Catalogs {
		next.Catalogs[id] = c
	}
	next.Catalogs[catalog.CatalogID] = catalog

	if err := s.write(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

func (s *jsonStore) IsValid(_ context.Context, catalogID string) (bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	catalog, ok := s.doc.Catalogs[catalogID]
	if !ok {
		return false, nil
	}
	return validAt(catalog.ScrapedAt, s.clock.Now(), s.ttl()), nil
}

func (s *jsonStore) Search(_ context.Context, query string) ([]domain.CoinEntry, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, nil
	}
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.CoinEntry
	for _, catalog := range s.doc.Catalogs {
		for _, coin := range catalog.Coins {
			if matches(coin, query) {
				results = append(results, coin)
			}
		}
	}
	sortCoins(results)
	return results, nil
}

func (s *jsonStore) List(_ context.Context) (map[string]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	catalogs := make(map[string]string, len(s.doc.Catalogs))
	for id, c := range s.doc.Catalogs {
		catalogs[id] = c.Name
	}
	return catalogs, nil
}

func (s *jsonStore) Status(_ context.Context) (Status, error) {
	if err := s.ensureLoaded(); err != nil {
		return Status{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	status := Status{
		Catalogs:    len(s.doc.Catalogs),
		LastFetched: s.doc.LastFetched,
		TTLHours:    s.ttlHours,
	}
	for _, c := range s.doc.Catalogs {
		status.Coins += len(c.Coins)
		if validAt(c.ScrapedAt, now, s.ttl()) {
			status.Fresh++
		} else {
			status.Stale++
		}
	}
	return status, nil
}

// Clear drops every catalog and deletes the backing file.
func (s *jsonStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove catalog store %s: %w", s.path, err)
	}
	s.doc = s.empty()
	s.loaded = true
	return nil
}
