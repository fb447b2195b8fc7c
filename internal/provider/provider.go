package provider

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/client"
	"coinmarket/scraper/internal/domain"
	"coinmarket/scraper/internal/pricing"
	"coinmarket/scraper/internal/service"
)

// Provider is the surface downstream pricing logic consumes. Every market data
// source is exposed through the same five operations.
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Search(ctx context.Context, query string, limit int) ([]*domain.MarketPriceRecord, error)
	GetPrice(ctx context.Context, itemID string) (*domain.MarketPriceRecord, error)
	NeedsRefresh(ctx context.Context) (bool, error)
	RefreshCache(ctx context.Context) (*service.Report, error)
}

type catalogProvider struct {
	name       string
	client     client.Client
	service    *service.Service
	normalizer *pricing.Normalizer
}

func New(name string, client client.Client, service *service.Service, normalizer *pricing.Normalizer) Provider {
	return &catalogProvider{
		name:       name,
		client:     client,
		service:    service,
		normalizer: normalizer,
	}
}

func (p *catalogProvider) Name() string {
	return p.name
}

// IsAvailable is false when no session cookies are configured.
func (p *catalogProvider) IsAvailable(ctx context.Context) bool {
	return p.client.HasCredentials(ctx)
}

// Search matches stored coins and converts them to market records. A
// non-positive limit returns every match.
func (p *catalogProvider) Search(ctx context.Context, query string, limit int) ([]*domain.MarketPriceRecord, error) {
	coins, err := p.service.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", p.name, err)
	}
	if limit > 0 && len(coins) > limit {
		coins = coins[:limit]
	}

	catalogs := make(map[string]*domain.CatalogData)
	records := make([]*domain.MarketPriceRecord, 0, len(coins))
	for _, coin := range coins {
		catalog, ok := catalogs[coin.CatalogID]
		if !ok {
			catalog, err = p.service.Store().Get(ctx, coin.CatalogID)
			if err != nil {
				return nil, fmt.Errorf("failed to load catalog %s: %w", coin.CatalogID, err)
			}
			catalogs[coin.CatalogID] = catalog
		}
		records = append(records, p.normalizer.Record(catalog, coin))
	}

	return records, nil
}

// GetPrice resolves an item id produced by this provider. Unknown ids yield nil.
func (p *catalogProvider) GetPrice(ctx context.Context, itemID string) (*domain.MarketPriceRecord, error) {
	catalogID, normalizedID, ok := pricing.ParseItemID(p.normalizer.Prefix(), itemID)
	if !ok {
		return nil, nil
	}

	catalog, err := p.service.Store().Get(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", catalogID, err)
	}
	if catalog == nil {
		return nil, nil
	}

	coin, ok := catalog.Coins[normalizedID]
	if !ok {
		return nil, nil
	}
	return p.normalizer.Record(catalog, coin), nil
}

// NeedsRefresh is true when nothing is stored yet or any known catalog is stale.
func (p *catalogProvider) NeedsRefresh(ctx context.Context) (bool, error) {
	status, err := p.service.Status(ctx)
	if err != nil {
		return false, err
	}
	if status.Catalogs == 0 {
		return true, nil
	}

	stale, err := p.staleCatalogs(ctx)
	if err != nil {
		return false, err
	}
	return len(stale) > 0, nil
}

// RefreshCache re-fetches stale catalogs only. The cached page is bypassed so an
// old copy cannot be re-served as fresh.
func (p *catalogProvider) RefreshCache(ctx context.Context) (*service.Report, error) {
	stale, err := p.staleCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		log.Infof("✅ All %s catalogs are fresh", p.name)
		return &service.Report{Failed: map[string]error{}, Classes: map[string]int{}}, nil
	}

	log.Infof("🔄 Refreshing %d stale %s catalogs", len(stale), p.name)
	return p.service.FetchCatalogs(ctx, stale, client.FetchOptions{Refresh: true})
}

func (p *catalogProvider) staleCatalogs(ctx context.Context) (map[string]string, error) {
	known, err := p.service.KnownCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	stale := make(map[string]string)
	for id, name := range known {
		valid, err := p.service.Store().IsValid(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check catalog %s: %w", id, err)
		}
		if !valid {
			stale[id] = name
		}
	}
	return stale, nil
}
