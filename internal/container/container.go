package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"coinmarket/scraper/internal/cache"
	"coinmarket/scraper/internal/client"
	"coinmarket/scraper/internal/config"
	"coinmarket/scraper/internal/credentials"
	"coinmarket/scraper/internal/discovery"
	"coinmarket/scraper/internal/domain"
	"coinmarket/scraper/internal/metrics"
	"coinmarket/scraper/internal/parser"
	"coinmarket/scraper/internal/pricing"
	"coinmarket/scraper/internal/provider"
	"coinmarket/scraper/internal/service"
	"coinmarket/scraper/internal/store"
	"coinmarket/scraper/internal/throttle"
)

// Container holds all initialized components
type Container struct {
	Config   *config.Config
	Client   client.Client
	Store    store.Store
	Service  *service.Service
	Provider provider.Provider

	db          *pgxpool.Pool
	redis       *redis.Client
	contentFile *cache.BoltBackend[domain.FetchResult]
	stopMetrics context.CancelFunc
}

// New creates a new container with all dependencies initialized
func New(cfg *config.Config) (*Container, error) {
	ctx := context.Background()
	container := &Container{
		Config: cfg,
	}

	if err := container.init(ctx); err != nil {
		_ = container.Close()
		return nil, err
	}

	return container, nil
}

func (c *Container) init(ctx context.Context) error {
	cfg := c.Config
	clk := clock.New()

	var backend cache.Backend[domain.FetchResult]
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := c.connectRedis(ctx)
		if err != nil {
			return err
		}
		backend = cache.NewRedisBackend[domain.FetchResult](rdb, cfg.Redis.KeyPrefix)
	case "file":
		file, err := cache.OpenBoltBackend[domain.FetchResult](cfg.Cache.Path)
		if err != nil {
			return err
		}
		c.contentFile = file
		backend = file
	default:
		backend = cache.NewMemoryBackend[domain.FetchResult]()
	}
	content := cache.NewLayer("content", backend, clk)

	creds := credentials.Chain{
		credentials.EnvProvider{Var: cfg.Auth.CookieEnv},
		credentials.FileProvider{Path: cfg.Auth.CookieFile},
	}

	deps := client.Deps{
		HTTP:        client.NewHTTPTransport(cfg.Fetch.UserAgent),
		Cache:       content,
		Queue:       throttle.NewQueue(cfg.Source.Name, cfg.Fetch.MinDelay),
		Credentials: creds,
		Clock:       clk,
	}
	if cfg.Browser.Enabled {
		deps.Browser = client.NewBrowserTransport(client.BrowserOptions{
			Headless:      cfg.Browser.Headless,
			ExecPath:      cfg.Browser.ExecPath,
			UserAgent:     cfg.Fetch.UserAgent,
			RenderTimeout: cfg.Browser.RenderTimeout,
			WaitSelector:  cfg.Browser.WaitSelector,
			CookieDomain:  cfg.Auth.CookieDomain,
		}, creds)
	}

	fetchClient := client.New(client.OptionsFromConfig(cfg.Source, cfg.Fetch), deps)
	c.Client = fetchClient

	catalogStore, err := c.openStore(ctx, clk)
	if err != nil {
		return err
	}
	c.Store = catalogStore

	c.Service = service.NewService(
		cfg.Source,
		fetchClient,
		parser.New(cfg.Parser.TableSelectors),
		discovery.New(fetchClient, cfg.Source.ExpandURL(cfg.Source.DiscoveryURL, ""), cfg.Discovery.Delay),
		catalogStore,
		content,
	)

	normalizer := pricing.NewNormalizer(cfg.Source.Name, cfg.Source.ItemPrefix, cfg.Pricing)
	c.Provider = provider.New(cfg.Source.Name, fetchClient, c.Service, normalizer)

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		c.stopMetrics = cancel
		metrics.Serve(metricsCtx, cfg.Metrics.Addr)
	}

	return nil
}

func (c *Container) connectRedis(ctx context.Context) (*redis.Client, error) {
	cfg := c.Config.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	c.redis = rdb

	// Test connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis successfully")
	return rdb, nil
}

func (c *Container) openStore(ctx context.Context, clk clock.Clock) (store.Store, error) {
	cfg := c.Config
	if cfg.Store.Backend != "postgres" {
		return store.NewJSONStore(cfg.Store.Path, cfg.Store.TTLHours, clk), nil
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	c.db = db

	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	log.Info("✅ Connected to Postgres successfully")

	return store.NewPostgresStore(ctx, db, cfg.Store.TTLHours, clk)
}

// Close performs cleanup when shutting down. The browser process, if started,
// is released by the client.
func (c *Container) Close() error {
	log.Debug("Shutting down container...")

	var errs []error
	if c.stopMetrics != nil {
		c.stopMetrics()
	}
	if c.Client != nil {
		errs = append(errs, c.Client.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.contentFile != nil {
		errs = append(errs, c.contentFile.Close())
	}
	if c.db != nil {
		c.db.Close()
	}

	log.Debug("Container shut down successfully")
	return errors.Join(errs...)
}
