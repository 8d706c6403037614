package bootstrap

import (
	"context"
	"fmt"
	"io"

	"walkforward/internal/alert"
	"walkforward/internal/broker/alpaca"
	"walkforward/internal/broker/paper"
	"walkforward/internal/config"
	"walkforward/internal/core"
	"walkforward/internal/engine/live"
	"walkforward/internal/features"
	"walkforward/internal/marketdata"
	"walkforward/internal/risk"
	"walkforward/internal/strategy"
	"walkforward/internal/trading/fill"
	"walkforward/internal/trading/order"
	wfhttp "walkforward/pkg/http"

	"github.com/shopspring/decimal"
)

// MarketData serves bars and the latest traded price.
type MarketData interface {
	core.BarFetcher
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Session holds the collaborators built from one configuration.
type Session struct {
	Cfg      *config.Config
	Fill     fill.Model
	Data     MarketData
	Broker   core.Broker
	Orders   *order.Executor
	Alerts   *alert.AlertManager
	Pipeline *features.Pipeline
	Registry *strategy.Registry
	logger   core.ILogger
}

// NewSession builds market data, broker, order executor and alerting from cfg.
func NewSession(cfg *config.Config, logger core.ILogger) (*Session, error) {
	model := FillModel(cfg)

	data, err := newMarketData(cfg, model.Classifier, logger)
	if err != nil {
		return nil, err
	}
	broker, err := newBroker(cfg, data, model.Classifier, logger)
	if err != nil {
		return nil, err
	}

	return &Session{
		Cfg:      cfg,
		Fill:     model,
		Data:     data,
		Broker:   broker,
		Orders:   order.NewExecutor(broker, logger),
		Alerts:   NewAlerts(cfg, logger),
		Pipeline: features.NewPipeline(),
		Registry: strategy.NewRegistry(strategy.Params{TrailPct: decimal.NewFromFloat(cfg.Strategy.TrailPct)}),
		logger:   logger,
	}, nil
}

// FillModel maps the execution section onto the cost model.
func FillModel(cfg *config.Config) fill.Model {
	e := cfg.Execution
	return fill.Model{
		Slippage:      decimal.NewFromFloat(e.Slippage),
		CryptoFeeRate: decimal.NewFromFloat(e.CryptoFeeRate),
		StockFeeRate:  decimal.NewFromFloat(e.StockFeeRate),
		ApplyFees:     e.ApplyFees,
		CryptoBuffer:  decimal.NewFromFloat(e.CryptoBuffer),
		StockBuffer:   decimal.NewFromFloat(e.StockBuffer),
		QtyDecimals:   e.QtyDecimals,
		Classifier:    fill.NewClassifier(cfg.Universe.Crypto),
	}
}

func newMarketData(cfg *config.Config, classifier fill.Classifier, logger core.ILogger) (MarketData, error) {
	switch cfg.Data.Source {
	case "csv":
		return marketdata.LoadCSVDir(cfg.Data.CSVDir, cfg.Universe.Full(), logger)
	case "alpaca":
		signer := wfhttp.NewAlpacaSigner(cfg.Broker.APIKey.Reveal(), cfg.Broker.SecretKey.Reveal())
		client := wfhttp.NewClient(cfg.Data.BaseURL, cfg.Data.Timeout, signer)
		return marketdata.NewAlpacaFetcher(client, classifier, marketdata.AlpacaConfig{
			Feed:              cfg.Data.Feed,
			RequestsPerSecond: cfg.Data.RateLimit,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

func newBroker(cfg *config.Config, quotes paper.QuoteSource, classifier fill.Classifier, logger core.ILogger) (core.Broker, error) {
	switch cfg.Broker.Type {
	case "paper":
		return paper.NewBroker(decimal.NewFromFloat(cfg.Broker.StartingCash), quotes, logger), nil
	case "alpaca":
		signer := wfhttp.NewAlpacaSigner(cfg.Broker.APIKey.Reveal(), cfg.Broker.SecretKey.Reveal())
		client := wfhttp.NewClient(cfg.Broker.BaseURL, cfg.Data.Timeout, signer)
		return alpaca.NewBroker(client, classifier, logger), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", cfg.Broker.Type)
	}
}

// NewAlerts registers the configured chat channels. With none configured
// the manager is a silent no-op.
func NewAlerts(cfg *config.Config, logger core.ILogger) *alert.AlertManager {
	am := alert.NewAlertManager(logger)
	if cfg.Alerts.SlackWebhook.IsSet() {
		am.AddChannel(alert.NewSlackChannel(cfg.Alerts.SlackWebhook.Reveal()))
	}
	if cfg.Alerts.TelegramToken.IsSet() && cfg.Alerts.TelegramChatID != "" {
		am.AddChannel(alert.NewTelegramChannel(cfg.Alerts.TelegramToken.Reveal(), cfg.Alerts.TelegramChatID))
	}
	return am
}

// Strategy resolves key, or the configured default when key is empty.
func (s *Session) Strategy(key string) (core.Strategy, error) {
	if key == "" {
		key = s.Cfg.Strategy.Default
	}
	return s.Registry.Select(key)
}

// LiveCycle assembles a live cycle over the configured universe. The returned
// closer releases the state store.
func (s *Session) LiveCycle(strat core.Strategy) (*live.Cycle, *risk.CircuitBreaker, io.Closer, error) {
	store, closer, err := live.OpenStore(s.Cfg.Live.StateBackend, s.Cfg.Live.StatePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state store: %w", err)
	}

	breaker := risk.NewCircuitBreaker(risk.CircuitConfig{
		MaxConsecutiveLosses: s.Cfg.Live.MaxConsecutiveLosses,
	})

	e := s.Cfg.Execution
	cycle, err := live.NewCycle(live.Config{
		Symbols:        s.Cfg.Universe.Full(),
		Timeframe:      s.Cfg.Live.Timeframe,
		LookbackDays:   e.LookbackDays,
		MinHistory:     e.MinHistory,
		CooldownCycles: e.CooldownCycles,
	}, live.Deps{
		Broker:   s.Broker,
		Orders:   s.Orders,
		Fetcher:  s.Data,
		Pipeline: s.Pipeline,
		Strategy: strat,
		Store:    store,
		Fill:     s.Fill,
		Notifier: s.Alerts,
		Breaker:  breaker,
	}, s.logger)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	return cycle, breaker, closer, nil
}
