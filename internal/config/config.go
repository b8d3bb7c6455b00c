package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pricewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Sites     []SiteConfig    `mapstructure:"sites"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig governs pass cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	PassTimeout     time.Duration `mapstructure:"pass_timeout"`
}

// StorageConfig selects and configures the collection store.
type StorageConfig struct {
	Driver   string          `mapstructure:"driver"`
	File     FileStoreConfig `mapstructure:"file"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Database DatabaseConfig  `mapstructure:"database"`
	SQLite   SQLiteConfig    `mapstructure:"sqlite"`
}

// FileStoreConfig locates the JSON collection file.
type FileStoreConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig is shared by the redis store and the redis stream notifier.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// BrowserConfig drives the rendering engine.
type BrowserConfig struct {
	Engine          string        `mapstructure:"engine"`
	ControlURL      string        `mapstructure:"control_url"`
	Bin             string        `mapstructure:"bin"`
	Headless        bool          `mapstructure:"headless"`
	NoSandbox       bool          `mapstructure:"no_sandbox"`
	Leakless        bool          `mapstructure:"leakless"`
	UserAgent       string        `mapstructure:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"`
	RenderTimeout   time.Duration `mapstructure:"render_timeout"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	SessionMemoryMB uint64        `mapstructure:"session_memory_mb"`
}

// ScraperConfig controls per-host pacing and cool-downs.
type ScraperConfig struct {
	HostRPS       float64       `mapstructure:"host_rps"`
	HostBurst     int           `mapstructure:"host_burst"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	Cache         CacheConfig   `mapstructure:"cache"`
}

// CacheConfig picks where host cool-downs live.
type CacheConfig struct {
	Driver        string   `mapstructure:"driver"`
	MemcacheAddrs []string `mapstructure:"memcache_addrs"`
}

// SiteConfig adds an extraction strategy ahead of the built-in ones.
type SiteConfig struct {
	Name           string        `mapstructure:"name"`
	HostContains   string        `mapstructure:"host_contains"`
	TitleSelectors []string      `mapstructure:"title_selectors"`
	PriceSelectors []string      `mapstructure:"price_selectors"`
	DismissClick   string        `mapstructure:"dismiss_selector"`
	DismissWait    time.Duration `mapstructure:"dismiss_wait"`
	ReadySelector  string        `mapstructure:"ready_selector"`
	ReadyWait      time.Duration `mapstructure:"ready_wait"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	CurrencySymbol string            `mapstructure:"currency_symbol"`
	Telegram       TelegramConfig    `mapstructure:"telegram"`
	RedisStream    RedisStreamConfig `mapstructure:"redis_stream"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisStreamConfig publishes drops to a stream on storage.redis.
type RedisStreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Stream  string `mapstructure:"stream"`
	MaxLen  int64  `mapstructure:"max_len"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv lets deployments of the earlier tracker keep their variables.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("alerting.telegram.bot_token", "PRICEWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("alerting.telegram.chat_id", "PRICEWATCH_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("storage.redis.url", "PRICEWATCH_STORAGE_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("browser.control_url", "PRICEWATCH_BROWSER_CONTROL_URL", "BROWSER_WS_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70726963))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.pass_timeout", "10m")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.file.path", "data/products.json")
	v.SetDefault("storage.redis.key", "products")
	v.SetDefault("storage.database.max_open_conns", 10)
	v.SetDefault("storage.database.max_idle_conns", 2)
	v.SetDefault("storage.database.conn_max_lifetime", "30m")
	v.SetDefault("storage.sqlite.path", "data/pricewatch.db")

	v.SetDefault("browser.engine", "rod")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.leakless", true)
	v.SetDefault("browser.render_timeout", "60s")
	v.SetDefault("browser.max_sessions", 0)
	v.SetDefault("browser.session_memory_mb", 300)

	v.SetDefault("scraper.host_rps", 0.5)
	v.SetDefault("scraper.host_burst", 2)
	v.SetDefault("scraper.block_duration", "15m")
	v.SetDefault("scraper.cache.driver", "memory")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.currency_symbol", "₹")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.redis_stream.enabled", false)
	v.SetDefault("alerting.redis_stream.stream", "pricewatch:drops")
	v.SetDefault("alerting.redis_stream.max_len", 10000)

	v.SetDefault("export.chart_width", 1024)
	v.SetDefault("export.chart_height", 480)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.PassTimeout < 0 {
		return fmt.Errorf("scheduler.pass_timeout cannot be negative")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "", "file":
	case "redis":
		if c.Storage.Redis.URL == "" && c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.url or storage.redis.addr must be set for the redis driver")
		}
	case "postgres":
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("storage.database.dsn must be set for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("storage.driver %q is not one of file, redis, postgres, sqlite", c.Storage.Driver)
	}

	switch strings.ToLower(c.Browser.Engine) {
	case "rod", "http":
	default:
		return fmt.Errorf("browser.engine %q is not one of rod, http", c.Browser.Engine)
	}
	if c.Browser.RenderTimeout <= 0 {
		return fmt.Errorf("browser.render_timeout must be greater than zero")
	}
	if c.Browser.MaxSessions < 0 {
		return fmt.Errorf("browser.max_sessions cannot be negative")
	}

	if c.Scraper.HostRPS < 0 {
		return fmt.Errorf("scraper.host_rps cannot be negative")
	}
	switch strings.ToLower(c.Scraper.Cache.Driver) {
	case "", "memory":
	case "memcache":
		if len(c.Scraper.Cache.MemcacheAddrs) == 0 {
			return fmt.Errorf("scraper.cache.memcache_addrs must be set for the memcache driver")
		}
	default:
		return fmt.Errorf("scraper.cache.driver %q is not one of memory, memcache", c.Scraper.Cache.Driver)
	}

	for i, s := range c.Sites {
		if s.HostContains == "" {
			return fmt.Errorf("sites[%d].host_contains must be set", i)
		}
		if len(s.TitleSelectors) == 0 || len(s.PriceSelectors) == 0 {
			return fmt.Errorf("sites[%d] needs title_selectors and price_selectors", i)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Alerting.RedisStream.Enabled && c.Storage.Redis.URL == "" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("alerting.redis_stream needs storage.redis.url or storage.redis.addr")
	}
	return nil
}
