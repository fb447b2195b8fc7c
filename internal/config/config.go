package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Source    SourceConfig    `mapstructure:"source"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SourceConfig describes the upstream pricing site
type SourceConfig struct {
	Name            string            `mapstructure:"name"`
	ItemPrefix      string            `mapstructure:"item_prefix"`
	BaseURL         string            `mapstructure:"base_url"`
	CatalogURL      string            `mapstructure:"catalog_url"` // {base} and {id} are substituted
	DiscoveryURL    string            `mapstructure:"discovery_url"`
	RequiresAuth    bool              `mapstructure:"requires_auth"`
	RequiresBrowser bool              `mapstructure:"requires_browser"`
	Catalogs        map[string]string `mapstructure:"catalogs"` // catalog id -> display name
	RootNode        int64             `mapstructure:"root_node"`
	MaxDepth        int               `mapstructure:"max_depth"`
	Workers         int               `mapstructure:"workers"`
}

// FetchConfig holds request pacing, retry and caching settings
type FetchConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	Jitter           time.Duration `mapstructure:"jitter"`
	MinDelay         time.Duration `mapstructure:"min_delay"`
	UserAgent        string        `mapstructure:"user_agent"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	BlockMarkers     []string      `mapstructure:"block_markers"`
	ChallengeMarkers []string      `mapstructure:"challenge_markers"`
}

type BrowserConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Headless      bool          `mapstructure:"headless"`
	ExecPath      string        `mapstructure:"exec_path"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	WaitSelector  string        `mapstructure:"wait_selector"`
}

// AuthConfig points at the session cookie sources, tried in order env then file
type AuthConfig struct {
	CookieEnv    string `mapstructure:"cookie_env"`
	CookieFile   string `mapstructure:"cookie_file"`
	CookieDomain string `mapstructure:"cookie_domain"`
}

type CacheConfig struct {
	Backend string `mapstructure:"backend"` // memory | file | redis
	Path    string `mapstructure:"path"`    // file backend location
}

type StoreConfig struct {
	Backend  string `mapstructure:"backend"` // json | postgres
	Path     string `mapstructure:"path"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

type PricingConfig struct {
	PrimaryPriority  []string `mapstructure:"primary_priority"`
	LowFactor        float64  `mapstructure:"low_factor"`
	HighFactor       float64  `mapstructure:"high_factor"`
	PremiumThreshold float64  `mapstructure:"premium_threshold"`
}

type DiscoveryConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

type ParserConfig struct {
	TableSelectors []string `mapstructure:"table_selectors"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	Database  int    `mapstructure:"database"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from an optional YAML file with environment variable overrides.
// An explicit path must exist; without one, a missing ./config.yaml falls back to defaults.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if flags != nil {
		if f := flags.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log.level", f); err != nil {
				return nil, fmt.Errorf("error binding log-level flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Source.Name == "" {
		return fmt.Errorf("source.name must not be empty")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Store.TTLHours <= 0 {
		return fmt.Errorf("store.ttl_hours must be positive, got %d", c.Store.TTLHours)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	case "file":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path must be set for the file backend")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	switch c.Store.Backend {
	case "json", "postgres":
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	// Band factors multiply the primary price: low must not raise it, high must not lower it.
	if c.Pricing.LowFactor <= 0 || c.Pricing.LowFactor > 1 {
		return fmt.Errorf("pricing.low_factor must be in (0, 1], got %g", c.Pricing.LowFactor)
	}
	if c.Pricing.HighFactor < 1 {
		return fmt.Errorf("pricing.high_factor must be at least 1, got %g", c.Pricing.HighFactor)
	}
	// Item ids are <prefix>-<catalog>-<row>, so a catalog id may not contain a dash.
	for id := range c.Source.Catalogs {
		if id == "" || strings.Contains(id, "-") {
			return fmt.Errorf("source.catalogs id %q must be non-empty and contain no '-'", id)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("source.name", "greysheet")
	v.SetDefault("source.item_prefix", "gs")
	v.SetDefault("source.base_url", "https://www.greysheet.com")
	v.SetDefault("source.catalog_url", "{base}/prices/catalog/{id}")
	v.SetDefault("source.discovery_url", "{base}/ajax/catalog-tree")
	v.SetDefault("source.requires_auth", true)
	v.SetDefault("source.requires_browser", false)
	v.SetDefault("source.root_node", 1)
	v.SetDefault("source.max_depth", 6)
	v.SetDefault("source.workers", 4)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.base_delay", time.Second)
	v.SetDefault("fetch.max_delay", 30*time.Second)
	v.SetDefault("fetch.jitter", 500*time.Millisecond)
	v.SetDefault("fetch.min_delay", 2*time.Second)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("fetch.cache_ttl", 7*24*time.Hour)
	v.SetDefault("fetch.block_markers", []string{"Quota Exceeded", "Too Many Requests"})
	v.SetDefault("fetch.challenge_markers", []string{"Just a moment...", "Enable JavaScript and cookies to continue"})

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.render_timeout", 45*time.Second)
	v.SetDefault("browser.wait_selector", "table")

	v.SetDefault("auth.cookie_env", "GREYSHEET_COOKIES")
	v.SetDefault("auth.cookie_file", "./cookies.txt")
	v.SetDefault("auth.cookie_domain", ".greysheet.com")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.path", "./data/content_cache.db")

	v.SetDefault("store.backend", "json")
	v.SetDefault("store.path", "./data/catalog_cache.json")
	v.SetDefault("store.ttl_hours", 24)

	v.SetDefault("pricing.primary_priority", []string{"wholesale", "pcgs", "ngc", "cac"})
	v.SetDefault("pricing.low_factor", 0.9)
	v.SetDefault("pricing.high_factor", 1.1)
	v.SetDefault("pricing.premium_threshold", 0.05)

	v.SetDefault("discovery.delay", 500*time.Millisecond)

	v.SetDefault("parser.table_selectors", []string{"table.pricing-grid", "table#prices", "table"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "coinmarket")
	v.SetDefault("database.user", "coinmarket_user")
	v.SetDefault("database.password", "coinmarket_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.key_prefix", "coinmarket:cache:")

	v.SetDefault("metrics.addr", "")
}

// ExpandURL substitutes {base} and {id} in a configured URL template.
func (s SourceConfig) ExpandURL(template, id string) string {
	return strings.NewReplacer("{base}", strings.TrimRight(s.BaseURL, "/"), "{id}", id).Replace(template)
}
