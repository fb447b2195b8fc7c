package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"coinmarket/scraper/internal/domain"
)

// Store persists one CatalogData per catalog id. Catalogs are only ever
// replaced whole; readers never observe a partially written catalog.
type Store interface {
	Get(ctx context.Context, catalogID string) (*domain.CatalogData, error)
	Put(ctx context.Context, catalog *domain.CatalogData) error
	IsValid(ctx context.Context, catalogID string) (bool, error)
	Search(ctx context.Context, query string) ([]domain.CoinEntry, error)
	List(ctx context.Context) (map[string]string, error)
	Status(ctx context.Context) (Status, error)
	Clear(ctx context.Context) error
}

type Status struct {
	Catalogs    int       `json:"catalogs"`
	Fresh       int       `json:"fresh"`
	Stale       int       `json:"stale"`
	Coins       int       `json:"coins"`
	LastFetched time.Time `json:"last_fetched"`
	TTLHours    int       `json:"ttl_hours"`
}

// validAt is evaluated per catalog: now - scrapedAt < ttl.
func validAt(scrapedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(scrapedAt) < ttl
}

func matches(coin domain.CoinEntry, query string) bool {
	return strings.Contains(strings.ToLower(coin.Description), query) ||
		strings.Contains(coin.NormalizedID, query)
}

func sortCoins(coins []domain.CoinEntry) {
	sort.Slice(coins, func(i, j int) bool {
		if coins[i].CatalogID != coins[j].CatalogID {
			return coins[i].CatalogID < coins[j].CatalogID
		}
		return coins[i].NormalizedID < coins[j].NormalizedID
	})
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
