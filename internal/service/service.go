package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"coinmarket/scraper/internal/cache"
	"coinmarket/scraper/internal/client"
	"coinmarket/scraper/internal/config"
	"coinmarket/scraper/internal/discovery"
	"coinmarket/scraper/internal/domain"
	"coinmarket/scraper/internal/metrics"
	"coinmarket/scraper/internal/parser"
	"coinmarket/scraper/internal/store"
)

// Service runs the ingestion pipeline for one source: fetch, parse, store.
type Service struct {
	source     config.SourceConfig
	client     client.Client
	parser     *parser.Parser
	discoverer *discovery.Discoverer
	store      store.Store
	content    *cache.Layer[domain.FetchResult]
}

func NewService(
	source config.SourceConfig,
	client client.Client,
	parser *parser.Parser,
	discoverer *discovery.Discoverer,
	store store.Store,
	content *cache.Layer[domain.FetchResult],
) *Service {
	return &Service{
		source:     source,
		client:     client,
		parser:     parser,
		discoverer: discoverer,
		store:      store,
		content:    content,
	}
}

func (s *Service) Store() store.Store {
	return s.store
}

// CatalogURL is the pricing page of catalogID.
func (s *Service) CatalogURL(catalogID string) string {
	return s.source.ExpandURL(s.source.CatalogURL, catalogID)
}

// FetchCatalog fetches, parses and stores one catalog. A page that yields no
// priced rows is reported as a parse error and never replaces stored data.
func (s *Service) FetchCatalog(ctx context.Context, catalogID string, opts client.FetchOptions) (*domain.CatalogData, error) {
	return s.fetchCatalog(ctx, catalogID, s.catalogName(ctx, catalogID), opts)
}

func (s *Service) fetchCatalog(ctx context.Context, catalogID, name string, opts client.FetchOptions) (*domain.CatalogData, error) {
	url := s.CatalogURL(catalogID)

	result, err := s.client.Fetch(ctx, url, opts)
	if err != nil {
		metrics.CatalogsProcessedTotal.WithLabelValues(s.source.Name, "fetch_failed").Inc()
		return nil, fmt.Errorf("failed to fetch catalog %s: %w", catalogID, err)
	}

	catalog, err := s.parser.ParseTable(result.Content, catalogID, name, url, result.FetchedAt)
	if err != nil {
		metrics.CatalogsProcessedTotal.WithLabelValues(s.source.Name, "parse_failed").Inc()
		return nil, fmt.Errorf("failed to parse catalog %s: %w", catalogID, err)
	}

	if catalog.IsEmpty() {
		metrics.CatalogsProcessedTotal.WithLabelValues(s.source.Name, "empty").Inc()
		if s.content != nil && !opts.SkipCache {
			if err := s.content.Invalidate(ctx, client.CacheKey(s.source.Name, url)); err != nil {
				log.Warnf("⚠️ %v", err)
			}
		}
		return nil, fmt.Errorf("%w: catalog %s at %s has no priced rows", parser.ErrParse, catalogID, url)
	}

	if err := s.store.Put(ctx, catalog); err != nil {
		return nil, fmt.Errorf("failed to store catalog %s: %w", catalogID, err)
	}

	metrics.CatalogsProcessedTotal.WithLabelValues(s.source.Name, "ok").Inc()
	metrics.CatalogCoins.WithLabelValues(s.source.Name, catalogID).Set(float64(len(catalog.Coins)))

	origin := "network"
	if result.FromCache {
		origin = "cache"
	}
	log.Infof("✅ Catalog %s (%s): %d coins, %d grade columns from %s",
		catalogID, name, len(catalog.Coins), len(catalog.GradeColumns), origin)

	return catalog, nil
}

// FetchAll refreshes every known catalog.
func (s *Service) FetchAll(ctx context.Context, opts client.FetchOptions) (*Report, error) {
	catalogs, err := s.KnownCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	return s.FetchCatalogs(ctx, catalogs, opts)
}

// FetchCatalogs fetches the given catalogs (id -> name). A failing catalog is
// recorded in the report and never stops the rest. Physical requests stay
// serialized by the client's queue; workers only overlap parsing and storing.
func (s *Service) FetchCatalogs(ctx context.Context, catalogs map[string]string, opts client.FetchOptions) (*Report, error) {
	ids := make([]string, 0, len(catalogs))
	for id := range catalogs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := newReport(len(ids))
	log.Infof("🔄 Fetching %d catalogs from %s", len(ids), s.source.Name)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.source.Workers))

	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			_, err := s.fetchCatalog(gctx, id, catalogs[id], opts)

			mu.Lock()
			report.record(id, err)
			mu.Unlock()

			if err != nil {
				log.Errorf("❌ Catalog %s failed [%s]: %v", id, client.ErrorClass(err), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	log.Infof("✅ Fetched %d/%d catalogs (%d failed)", report.Succeeded, report.Total, len(report.Failed))
	return report, ctx.Err()
}

// Discover walks the catalog tree. rootID <= 0 and maxDepth < 0 fall back to
// the configured root and depth.
func (s *Service) Discover(ctx context.Context, rootID int64, maxDepth int) (map[string]string, error) {
	if rootID <= 0 {
		rootID = s.source.RootNode
	}
	if maxDepth < 0 {
		maxDepth = s.source.MaxDepth
	}

	log.Infof("🔍 Discovering catalogs from node %d (max depth %d)", rootID, maxDepth)
	return s.discoverer.Discover(ctx, rootID, maxDepth)
}

// KnownCatalogs merges configured catalogs with the ones already stored.
func (s *Service) KnownCatalogs(ctx context.Context) (map[string]string, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored catalogs: %w", err)
	}

	catalogs := make(map[string]string, len(stored)+len(s.source.Catalogs))
	for id, name := range stored {
		catalogs[id] = name
	}
	for id, name := range s.source.Catalogs {
		catalogs[id] = name
	}
	return catalogs, nil
}

func (s *Service) catalogName(ctx context.Context, catalogID string) string {
	if name, ok := s.source.Catalogs[catalogID]; ok {
		return name
	}
	if stored, err := s.store.Get(ctx, catalogID); err == nil && stored != nil {
		return stored.Name
	}
	return "Catalog " + catalogID
}

func (s *Service) Search(ctx context.Context, query string) ([]domain.CoinEntry, error) {
	return s.store.Search(ctx, query)
}

func (s *Service) Status(ctx context.Context) (store.Status, error) {
	return s.store.Status(ctx)
}

// Clear drops both the catalog store and the raw content cache.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	if s.content != nil {
		if err := s.content.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear content cache: %w", err)
		}
	}
	log.Info("🧹 Catalog store and content cache cleared")
	return nil
}
