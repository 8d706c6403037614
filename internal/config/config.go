package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. YAML is a superset of JSON, so a
// settings.json with the same keys loads as well.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Universe    UniverseConfig    `yaml:"universe"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Live        LiveConfig        `yaml:"live"`
	Data        DataConfig        `yaml:"data"`
	Broker      BrokerConfig      `yaml:"broker"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

type AccountConfig struct {
	InitialCapital      float64                   `yaml:"initial_capital"`
	BacktestDays        int                       `yaml:"backtest_days"`
	PaperMode           bool                      `yaml:"paper_mode"`
	RecurringInvestment RecurringInvestmentConfig `yaml:"recurring_investment"`
}

type RecurringInvestmentConfig struct {
	Amount       float64 `yaml:"amount"`
	IntervalDays int     `yaml:"interval_days"`
}

type StrategyConfig struct {
	Default  string  `yaml:"default"`
	TrailPct float64 `yaml:"trail_pct"`
}

type UniverseConfig struct {
	Stocks []string `yaml:"stocks"`
	Crypto []string `yaml:"crypto"`
}

// Full returns stocks followed by crypto.
func (u UniverseConfig) Full() []string {
	out := make([]string, 0, len(u.Stocks)+len(u.Crypto))
	out = append(out, u.Stocks...)
	return append(out, u.Crypto...)
}

type ExecutionConfig struct {
	Slippage       float64 `yaml:"slippage"`
	CryptoFeeRate  float64 `yaml:"crypto_fee_rate"`
	StockFeeRate   float64 `yaml:"stock_fee_rate"`
	ApplyFees      bool    `yaml:"apply_fees"`
	CryptoBuffer   float64 `yaml:"crypto_buffer"`
	StockBuffer    float64 `yaml:"stock_buffer"`
	QtyDecimals    int     `yaml:"qty_decimals"`
	CooldownCycles int     `yaml:"cooldown_cycles"`
	MinHistory     int     `yaml:"min_history"`
	LookbackDays   int     `yaml:"lookback_days"`
}

type LiveConfig struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	StateBackend         string        `yaml:"state_backend"`
	StatePath            string        `yaml:"state_path"`
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses"`
	Timeframe            string        `yaml:"timeframe"`
}

type DataConfig struct {
	Source    string        `yaml:"source"`
	BaseURL   string        `yaml:"base_url"`
	Feed      string        `yaml:"feed"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	CSVDir    string        `yaml:"csv_dir"`
}

type BrokerConfig struct {
	Type         string  `yaml:"type"`
	BaseURL      string  `yaml:"base_url"`
	APIKey       Secret  `yaml:"api_key"`
	SecretKey    Secret  `yaml:"secret_key"`
	StartingCash float64 `yaml:"starting_cash"`
}

type AlertsConfig struct {
	SlackWebhook   Secret `yaml:"slack_webhook"`
	TelegramToken  Secret `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

type ConcurrencyConfig struct {
	BacktestWorkers int `yaml:"backtest_workers"`
}

// ValidationError describes one invalid field
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig reads filename, expands ${ENV} references, overlays the result
// on DefaultConfig and validates it.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig for in-memory content.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []string
	for _, check := range []func() []error{
		c.validateAccount,
		c.validateStrategy,
		c.validateExecution,
		c.validateLive,
		c.validateData,
		c.validateBroker,
		c.validateSystem,
	} {
		for _, err := range check() {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAccount() []error {
	var errs []error
	if c.Account.InitialCapital <= 0 {
		errs = append(errs, ValidationError{Field: "account.initial_capital", Value: c.Account.InitialCapital, Message: "must be positive"})
	}
	if c.Account.BacktestDays <= 0 {
		errs = append(errs, ValidationError{Field: "account.backtest_days", Value: c.Account.BacktestDays, Message: "must be positive"})
	}
	ri := c.Account.RecurringInvestment
	if ri.Amount < 0 {
		errs = append(errs, ValidationError{Field: "account.recurring_investment.amount", Value: ri.Amount, Message: "must not be negative"})
	}
	if ri.Amount > 0 && ri.IntervalDays <= 0 {
		errs = append(errs, ValidationError{Field: "account.recurring_investment.interval_days", Value: ri.IntervalDays, Message: "must be positive when amount is set"})
	}
	return errs
}

func (c *Config) validateStrategy() []error {
	if strings.TrimSpace(c.Strategy.Default) == "" {
		return []error{ValidationError{Field: "strategy.default", Message: "strategy is required"}}
	}
	if c.Strategy.TrailPct < 0 || c.Strategy.TrailPct >= 1 {
		return []error{ValidationError{Field: "strategy.trail_pct", Value: c.Strategy.TrailPct, Message: "must be in [0, 1)"}}
	}
	return nil
}

func (c *Config) validateExecution() []error {
	var errs []error
	e := c.Execution
	for field, v := range map[string]float64{
		"execution.slippage":        e.Slippage,
		"execution.crypto_fee_rate": e.CryptoFeeRate,
		"execution.stock_fee_rate":  e.StockFeeRate,
	} {
		if v < 0 || v >= 1 {
			errs = append(errs, ValidationError{Field: field, Value: v, Message: "must be in [0, 1)"})
		}
	}
	for field, v := range map[string]float64{
		"execution.crypto_buffer": e.CryptoBuffer,
		"execution.stock_buffer":  e.StockBuffer,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, ValidationError{Field: field, Value: v, Message: "must be in (0, 1]"})
		}
	}
	if e.QtyDecimals < 0 || e.QtyDecimals > 12 {
		errs = append(errs, ValidationError{Field: "execution.qty_decimals", Value: e.QtyDecimals, Message: "must be between 0 and 12"})
	}
	if e.CooldownCycles < 0 {
		errs = append(errs, ValidationError{Field: "execution.cooldown_cycles", Value: e.CooldownCycles, Message: "must not be negative"})
	}
	if e.MinHistory <= 0 {
		errs = append(errs, ValidationError{Field: "execution.min_history", Value: e.MinHistory, Message: "must be positive"})
	}
	if e.LookbackDays < e.MinHistory {
		errs = append(errs, ValidationError{Field: "execution.lookback_days", Value: e.LookbackDays, Message: "must cover min_history"})
	}
	return errs
}

func (c *Config) validateLive() []error {
	var errs []error
	if c.Live.PollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "live.poll_interval", Value: c.Live.PollInterval, Message: "must be positive"})
	}
	switch c.Live.StateBackend {
	case "json", "sqlite":
		if c.Live.StatePath == "" {
			errs = append(errs, ValidationError{Field: "live.state_path", Message: "required for file backed state"})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{Field: "live.state_backend", Value: c.Live.StateBackend, Message: "must be one of: json, sqlite, memory"})
	}
	if c.Live.MaxConsecutiveLosses < 0 {
		errs = append(errs, ValidationError{Field: "live.max_consecutive_losses", Value: c.Live.MaxConsecutiveLosses, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateData() []error {
	var errs []error
	switch c.Data.Source {
	case "alpaca":
		if c.Data.BaseURL == "" {
			errs = append(errs, ValidationError{Field: "data.base_url", Message: "required for alpaca data"})
		}
	case "csv":
		if c.Data.CSVDir == "" {
			errs = append(errs, ValidationError{Field: "data.csv_dir", Message: "required for csv data"})
		}
	default:
		errs = append(errs, ValidationError{Field: "data.source", Value: c.Data.Source, Message: "must be one of: alpaca, csv"})
	}
	if c.Data.RateLimit <= 0 {
		errs = append(errs, ValidationError{Field: "data.rate_limit", Value: c.Data.RateLimit, Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateBroker() []error {
	var errs []error
	switch c.Broker.Type {
	case "paper":
		if c.Broker.StartingCash <= 0 {
			errs = append(errs, ValidationError{Field: "broker.starting_cash", Value: c.Broker.StartingCash, Message: "must be positive for the paper broker"})
		}
	case "alpaca":
		if !c.Broker.APIKey.IsSet() {
			errs = append(errs, ValidationError{Field: "broker.api_key", Message: "API key is required"})
		}
		if !c.Broker.SecretKey.IsSet() {
			errs = append(errs, ValidationError{Field: "broker.secret_key", Message: "secret key is required"})
		}
		if c.Broker.BaseURL == "" {
			errs = append(errs, ValidationError{Field: "broker.base_url", Message: "required for alpaca"})
		}
	default:
		errs = append(errs, ValidationError{Field: "broker.type", Value: c.Broker.Type, Message: "must be one of: paper, alpaca"})
	}
	return errs
}

func (c *Config) validateSystem() []error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return []error{ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}}
	}
	return nil
}

// String renders the config as YAML with secrets redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// expandEnvVars replaces ${VAR} and $VAR references with environment values
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a paper-trading configuration
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			InitialCapital: 1000,
			BacktestDays:   365,
			PaperMode:      true,
			RecurringInvestment: RecurringInvestmentConfig{
				Amount:       0,
				IntervalDays: 30,
			},
		},
		Strategy: StrategyConfig{
			Default:  "1",
			TrailPct: 0.08,
		},
		Universe: UniverseConfig{
			Stocks: []string{"SPY", "QQQ"},
			Crypto: []string{"BTC/USD", "ETH/USD"},
		},
		Execution: ExecutionConfig{
			Slippage:       0.0003,
			CryptoFeeRate:  0.0025,
			StockFeeRate:   0,
			CryptoBuffer:   0.98,
			StockBuffer:    0.99,
			QtyDecimals:    4,
			CooldownCycles: 5,
			MinHistory:     50,
			LookbackDays:   100,
		},
		Live: LiveConfig{
			PollInterval: time.Minute,
			StateBackend: "json",
			StatePath:    "state.json",
			Timeframe:    "1Day",
		},
		Data: DataConfig{
			Source:    "alpaca",
			BaseURL:   "https://data.alpaca.markets",
			Feed:      "iex",
			Timeout:   10 * time.Second,
			RateLimit: 3,
		},
		Broker: BrokerConfig{
			Type:         "paper",
			BaseURL:      "https://paper-api.alpaca.markets",
			StartingCash: 1000,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
		Concurrency: ConcurrencyConfig{
			BacktestWorkers: 4,
		},
	}
}
