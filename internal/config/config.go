package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"price-tracker/internal/logging"
)

// ErrConfigurationMissing marks a required input that was not supplied.
var ErrConfigurationMissing = errors.New("required configuration missing")

const (
	SourceCoinMarketCap = "coinmarketcap"
	SourceChainlink     = "chainlink"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	History   HistoryConfig   `mapstructure:"history"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig selects and configures the price provider.
type SourceConfig struct {
	Kind            string              `mapstructure:"kind"`
	Symbol          string              `mapstructure:"symbol"`
	Convert         string              `mapstructure:"convert"`
	MinPollInterval time.Duration       `mapstructure:"min_poll_interval"`
	RequestTimeout  time.Duration       `mapstructure:"request_timeout"`
	CoinMarketCap   CoinMarketCapConfig `mapstructure:"coinmarketcap"`
	Chainlink       ChainlinkConfig     `mapstructure:"chainlink"`
}

// CoinMarketCapConfig holds the CoinMarketCap credential and endpoint.
type CoinMarketCapConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	RetryCount int    `mapstructure:"retry_count"`
}

// ChainlinkConfig covers on-chain feed access.
type ChainlinkConfig struct {
	RPCURL      string `mapstructure:"rpc_url"`
	FeedAddress string `mapstructure:"feed_address"`
}

// TrackerConfig holds the alert threshold.
type TrackerConfig struct {
	ThresholdPct float64 `mapstructure:"threshold_pct"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SafetyMargin  float64       `mapstructure:"safety_margin"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	TickHeartbeat bool          `mapstructure:"tick_heartbeat"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// HistoryConfig locates the observation log.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig encapsulates the optional PostgreSQL mirror.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// legacyKeys maps the API/TELEGRAM section layout of older deployments onto current keys.
var legacyKeys = map[string]string{
	"source.coinmarketcap.api_key": "api.api_key",
	"alerting.telegram.bot_token":  "telegram.bot_token",
	"alerting.telegram.chat_id":    "telegram.chat_id",
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PRICETRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}
	applyLegacyKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
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

func applyLegacyKeys(v *viper.Viper) {
	for key, legacy := range legacyKeys {
		if v.GetString(key) == "" && v.GetString(legacy) != "" {
			v.Set(key, v.GetString(legacy))
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricetracker")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("source.kind", SourceCoinMarketCap)
	v.SetDefault("source.symbol", "BTC")
	v.SetDefault("source.convert", "USD")
	v.SetDefault("source.min_poll_interval", "5m")
	v.SetDefault("source.request_timeout", "10s")
	v.SetDefault("source.coinmarketcap.api_key", "")
	v.SetDefault("source.coinmarketcap.base_url", "https://pro-api.coinmarketcap.com")
	v.SetDefault("source.coinmarketcap.retry_count", 0)
	v.SetDefault("source.chainlink.rpc_url", "")
	v.SetDefault("source.chainlink.feed_address", "")

	v.SetDefault("tracker.threshold_pct", 1.0)

	v.SetDefault("scheduler.interval", "0s")
	v.SetDefault("scheduler.safety_margin", 2.0)
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.tick_heartbeat", true)

	v.SetDefault("alerting.telegram.enabled", true)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("history.path", "btc.json")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x70726963))
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Source.Kind {
	case SourceCoinMarketCap, SourceChainlink:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceCoinMarketCap, SourceChainlink, c.Source.Kind)
	}
	if c.Source.MinPollInterval <= 0 {
		return fmt.Errorf("source.min_poll_interval must be greater than zero")
	}
	if c.Scheduler.SafetyMargin < 1 {
		return fmt.Errorf("scheduler.safety_margin must be at least 1")
	}
	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler.interval cannot be negative")
	}
	if c.Scheduler.Interval > 0 && c.Scheduler.Interval < c.MinSafeInterval() {
		return fmt.Errorf("scheduler.interval %s is below source.min_poll_interval x scheduler.safety_margin (%s)",
			c.Scheduler.Interval, c.MinSafeInterval())
	}
	if c.Tracker.ThresholdPct < 0 {
		return fmt.Errorf("tracker.threshold_pct cannot be negative")
	}
	if c.History.Path == "" {
		return fmt.Errorf("history.path must be set")
	}
	return nil
}

// RequireRunCredentials checks the inputs the sampling loop cannot start without.
func (c *Config) RequireRunCredentials() error {
	var missing []string
	switch c.Source.Kind {
	case SourceCoinMarketCap:
		if c.Source.CoinMarketCap.APIKey == "" {
			missing = append(missing, "source.coinmarketcap.api_key")
		}
	case SourceChainlink:
		if c.Source.Chainlink.RPCURL == "" {
			missing = append(missing, "source.chainlink.rpc_url")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			missing = append(missing, "alerting.telegram.bot_token")
		}
		if c.Alerting.Telegram.ChatID == "" {
			missing = append(missing, "alerting.telegram.chat_id")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

// MinSafeInterval is the provider minimum polling interval widened by the safety margin.
func (c *Config) MinSafeInterval() time.Duration {
	return time.Duration(float64(c.Source.MinPollInterval) * c.Scheduler.SafetyMargin)
}

// SamplingInterval returns the explicit interval or, when unset, the minimum safe interval.
func (c *Config) SamplingInterval() time.Duration {
	if c.Scheduler.Interval > 0 {
		return c.Scheduler.Interval
	}
	return c.MinSafeInterval()
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
