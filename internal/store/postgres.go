package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coinmarket/scraper/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_data (
	catalog_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL
)`

type postgresStore struct {
	db       *pgxpool.Pool
	ttlHours int
	clock    clock.Clock
}

// NewPostgresStore keeps one row per catalog with the full CatalogData as JSONB.
// An upsert replaces the row, so a catalog is always swapped whole.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool, ttlHours int, clk clock.Clock) (Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create catalog_data table: %w", err)
	}
	return &postgresStore{
		db:       db,
		ttlHours: ttlHours,
		clock:    clk,
	}, nil
}

func (r *postgresStore) ttl() time.Duration {
	return time.Duration(r.ttlHours) * time.Hour
}

func (r *postgresStore) Get(ctx context.Context, catalogID string) (*domain.CatalogData, error) {
	var catalog domain.CatalogData
	err := r.db.QueryRow(ctx, `SELECT data FROM catalog_data WHERE catalog_id = $1`, catalogID).Scan(&catalog)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog %s: %w", catalogID, err)
	}
	return &catalog, nil
}

func (r *postgresStore) Put(ctx context.Context, catalog *domain.CatalogData) error {
	if catalog == nil || catalog.CatalogID == "" {
		return fmt.Errorf("cannot store catalog without id")
	}

	query := `
	INSERT INTO catalog_data (catalog_id, name, scraped_at, data)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (catalog_id)
	DO UPDATE SET name = $2, scraped_at = $3, data = $4`
	_, err := r.db.Exec(ctx, query, catalog.CatalogID, catalog.Name, catalog.ScrapedAt, catalog)
	if err != nil {
		return fmt.Errorf("failed to save catalog %s: %w", catalog.CatalogID, err)
	}

	return nil
}

func (r *postgresStore) IsValid(ctx context.Context, catalogID string) (bool, error) {
	var scrapedAt time.Time
	err := r.db.QueryRow(ctx, `SELECT scraped_at FROM catalog_data WHERE catalog_id = $1`, catalogID).Scan(&scrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check catalog %s: %w", catalogID, err)
	}
	return validAt(scrapedAt, r.clock.Now(), r.ttl()), nil
}

func (r *postgresStore) Search(ctx context.Context, query string) ([]domain.CoinEntry, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, nil
	}

	pattern := "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(query) + "%"
	rows, err := r.db.Query(ctx, `
	SELECT coin.value
	FROM catalog_data, jsonb_each(catalog_data.data->'coins') AS coin
	WHERE coin.value->>'description' ILIKE $1 OR coin.value->>'normalized_id' ILIKE $1`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalogs: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CoinEntry, error) {
		var coin domain.CoinEntry
		err := row.Scan(&coin)
		return coin, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	sortCoins(results)
	return results, nil
}

func (r *postgresStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT catalog_id, name FROM catalog_data`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}
	defer rows.Close()

	catalogs := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		catalogs[id] = name
	}
	return catalogs, rows.Err()
}

func (r *postgresStore) Status(ctx context.Context) (Status, error) {
	rows, err := r.db.Query(ctx, `
	SELECT scraped_at, (SELECT count(*) FROM jsonb_object_keys(data->'coins'))
	FROM catalog_data`)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read store status: %w", err)
	}
	defer rows.Close()

	now := r.clock.Now()
	status := Status{TTLHours: r.ttlHours}
	for rows.Next() {
		var (
			scrapedAt time.Time
			coins     int
		)
		if err := rows.Scan(&scrapedAt, &coins); err != nil {
			return Status{}, fmt.Errorf("failed to scan status row: %w", err)
		}

		status.Catalogs++
		status.Coins += coins
		if validAt(scrapedAt, now, r.ttl()) {
			status.Fresh++
		} else {
			status.Stale++
		}
		if scrapedAt.After(status.LastFetched) {
			status.LastFetched = scrapedAt
		}
	}
	return status, rows.Err()
}

func (r *postgresStore) Clear(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM catalog_data`); err != nil {
		return fmt.Errorf("failed to clear catalogs: %w", err)
	}
	return nil
}
