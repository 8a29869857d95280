package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "app:\n  name: tracker\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tracker", cfg.App.Name)
	assert.Equal(t, SourceCoinMarketCap, cfg.Source.Kind)
	assert.Equal(t, "BTC", cfg.Source.Symbol)
	assert.Equal(t, 5*time.Minute, cfg.Source.MinPollInterval)
	assert.Equal(t, 10*time.Minute, cfg.SamplingInterval(), "default interval is twice the provider minimum")
	assert.Equal(t, 1.0, cfg.Tracker.ThresholdPct)
	assert.Equal(t, "btc.json", cfg.History.Path)
	assert.True(t, cfg.Scheduler.TickHeartbeat)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
source:
  coinmarketcap:
    api_key: from-file
tracker:
  threshold_pct: 5
scheduler:
  interval: 15m
alerting:
  telegram:
    bot_token: bot
    chat_id: "42"
`)
	t.Setenv("PRICETRACKER_SOURCE_COINMARKETCAP_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Source.CoinMarketCap.APIKey)
	assert.Equal(t, 5.0, cfg.Tracker.ThresholdPct)
	assert.Equal(t, 15*time.Minute, cfg.SamplingInterval())
	assert.Equal(t, "42", cfg.Alerting.Telegram.ChatID)
	require.NoError(t, cfg.RequireRunCredentials())
}

func TestLoadLegacySections(t *testing.T) {
	path := writeFile(t, "config.yaml", `
API:
  api_key: legacy-key
TELEGRAM:
  bot_token: legacy-bot
  chat_id: "1001"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.Source.CoinMarketCap.APIKey)
	assert.Equal(t, "legacy-bot", cfg.Alerting.Telegram.BotToken)
	assert.Equal(t, "1001", cfg.Alerting.Telegram.ChatID)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source:    SourceConfig{Kind: SourceCoinMarketCap, MinPollInterval: 5 * time.Minute},
			Scheduler: SchedulerConfig{SafetyMargin: 2},
			Tracker:   TrackerConfig{ThresholdPct: 1},
			History:   HistoryConfig{Path: "btc.json"},
			Export:    ExportConfig{MaxDataPoints: 10},
		}
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "interval below safety margin", mutate: func(c *Config) { c.Scheduler.Interval = 6 * time.Minute }},
		{name: "safety margin below one", mutate: func(c *Config) { c.Scheduler.SafetyMargin = 0.5 }},
		{name: "negative threshold", mutate: func(c *Config) { c.Tracker.ThresholdPct = -1 }},
		{name: "unknown source", mutate: func(c *Config) { c.Source.Kind = "yahoo" }},
		{name: "empty history path", mutate: func(c *Config) { c.History.Path = "" }},
		{name: "zero poll interval", mutate: func(c *Config) { c.Source.MinPollInterval = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireRunCredentials(t *testing.T) {
	cfg := &Config{
		Source:   SourceConfig{Kind: SourceCoinMarketCap},
		Alerting: AlertingConfig{Telegram: TelegramConfig{Enabled: true}},
	}

	err := cfg.RequireRunCredentials()
	require.ErrorIs(t, err, ErrConfigurationMissing)
	assert.Contains(t, err.Error(), "source.coinmarketcap.api_key")
	assert.Contains(t, err.Error(), "alerting.telegram.bot_token")
	assert.Contains(t, err.Error(), "alerting.telegram.chat_id")

	cfg.Source.CoinMarketCap.APIKey = "key"
	cfg.Alerting.Telegram.Enabled = false
	require.NoError(t, cfg.RequireRunCredentials())

	cfg.Source.Kind = SourceChainlink
	require.ErrorIs(t, cfg.RequireRunCredentials(), ErrConfigurationMissing)
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 7, cfg.ResolveMaxPoints(7))
}
