package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("WF_TEST_KEY", "abc123")

	assert.Equal(t, "key: abc123", expandEnvVars("key: ${WF_TEST_KEY}"))
	assert.Equal(t, "key: abc123", expandEnvVars("key: $WF_TEST_KEY"))
	assert.Equal(t, "key: ", expandEnvVars("key: ${WF_TEST_UNSET_VAR}"))
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"SPY", "QQQ", "BTC/USD", "ETH/USD"}, cfg.Universe.Full())
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	t.Setenv("WF_ALPACA_KEY", "key-id")
	t.Setenv("WF_ALPACA_SECRET", "secret-value")

	content := `
account:
  initial_capital: 5000
  recurring_investment:
    amount: 250
    interval_days: 14
strategy:
  default: donchian_trailing
broker:
  type: alpaca
  api_key: ${WF_ALPACA_KEY}
  secret_key: ${WF_ALPACA_SECRET}
live:
  poll_interval: 30s
  state_backend: sqlite
  state_path: state.db
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 250.0, cfg.Account.RecurringInvestment.Amount)
	assert.Equal(t, 14, cfg.Account.RecurringInvestment.IntervalDays)
	assert.Equal(t, "donchian_trailing", cfg.Strategy.Default)
	assert.Equal(t, "key-id", cfg.Broker.APIKey.Reveal())
	assert.Equal(t, "secret-value", cfg.Broker.SecretKey.Reveal())
	assert.Equal(t, 30*time.Second, cfg.Live.PollInterval)
	assert.Equal(t, "sqlite", cfg.Live.StateBackend)

	// untouched sections keep their defaults
	assert.Equal(t, 0.0003, cfg.Execution.Slippage)
	assert.Equal(t, 365, cfg.Account.BacktestDays)
	assert.Equal(t, 0.08, cfg.Strategy.TrailPct)
}

func TestLoadConfig_JSONSettings(t *testing.T) {
	content := `{"account": {"initial_capital": 2000, "backtest_days": 180}, "strategy": {"default": "2"}}`
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 180, cfg.Account.BacktestDays)
	assert.Equal(t, "2", cfg.Strategy.Default)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero capital", func(c *Config) { c.Account.InitialCapital = 0 }, "account.initial_capital"},
		{"negative deposit", func(c *Config) { c.Account.RecurringInvestment.Amount = -1 }, "account.recurring_investment.amount"},
		{"deposit without interval", func(c *Config) {
			c.Account.RecurringInvestment.Amount = 100
			c.Account.RecurringInvestment.IntervalDays = 0
		}, "account.recurring_investment.interval_days"},
		{"empty strategy", func(c *Config) { c.Strategy.Default = " " }, "strategy.default"},
		{"trail out of range", func(c *Config) { c.Strategy.TrailPct = 1.5 }, "strategy.trail_pct"},
		{"slippage out of range", func(c *Config) { c.Execution.Slippage = 1 }, "execution.slippage"},
		{"zero buffer", func(c *Config) { c.Execution.StockBuffer = 0 }, "execution.stock_buffer"},
		{"lookback too short", func(c *Config) { c.Execution.LookbackDays = 10 }, "execution.lookback_days"},
		{"unknown backend", func(c *Config) { c.Live.StateBackend = "redis" }, "live.state_backend"},
		{"json without path", func(c *Config) { c.Live.StatePath = "" }, "live.state_path"},
		{"unknown data source", func(c *Config) { c.Data.Source = "yahoo" }, "data.source"},
		{"alpaca broker without keys", func(c *Config) { c.Broker.Type = "alpaca" }, "broker.api_key"},
		{"unknown broker", func(c *Config) { c.Broker.Type = "ib" }, "broker.type"},
		{"bad log level", func(c *Config) { c.System.LogLevel = "TRACE" }, "system.log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Account.InitialCapital = -5
	cfg.System.LogLevel = "LOUD"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account.initial_capital")
	assert.Contains(t, err.Error(), "system.log_level")
}

func TestConfigString_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker.APIKey = "super-secret-key"
	cfg.Alerts.SlackWebhook = "https://hooks.slack.com/services/T/B/X"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret-key")
	assert.NotContains(t, out, "hooks.slack.com")
	assert.Contains(t, out, redacted)
}

func TestLoadConfig_ShippedExample(t *testing.T) {
	t.Setenv("APCA_API_KEY_ID", "AK123")
	t.Setenv("APCA_API_SECRET_KEY", "SK456")
	t.Setenv("SLACK_WEBHOOK_URL", "")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Live.PollInterval)
	assert.Equal(t, 3, cfg.Live.MaxConsecutiveLosses)
	assert.Equal(t, "AK123", cfg.Broker.APIKey.Reveal())
	assert.False(t, cfg.Alerts.SlackWebhook.IsSet())
	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, cfg.Universe.Crypto)
}
