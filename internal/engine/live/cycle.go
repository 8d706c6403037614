// Package live runs one polling cycle of the live trader: sync persisted
// per-symbol records with the broker, ask the strategy, place orders and
// persist the records again.
package live

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"walkforward/internal/core"
	"walkforward/internal/risk"
	"walkforward/internal/trading/fill"
	"walkforward/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// minAllocFraction of one unit's price is the smallest entry worth placing.
var minAllocFraction = decimal.RequireFromString("0.01")

// Config holds the cycle parameters
type Config struct {
	Symbols        []string
	Timeframe      string
	LookbackDays   int
	MinHistory     int
	CooldownCycles int
}

// DefaultConfig returns the 100-day lookback, 50-row minimum, 5-cycle cooldown setup.
func DefaultConfig(symbols []string) Config {
	return Config{
		Symbols:        symbols,
		Timeframe:      "1Day",
		LookbackDays:   100,
		MinHistory:     50,
		CooldownCycles: 5,
	}
}

// Deps are the collaborators of a cycle. Notifier and Breaker are optional.
type Deps struct {
	Broker   core.Broker
	Orders   core.IOrderExecutor
	Fetcher  core.BarFetcher
	Pipeline core.FeaturePipeline
	Strategy core.Strategy
	Store    core.StateStore
	Fill     fill.Model
	Notifier core.INotifier
	Breaker  *risk.CircuitBreaker
}

// Report summarises one cycle
type Report struct {
	Processed []string
	Skipped   []string
	Failed    []string
	Orders    []core.Order
}

// Cycle is safe for sequential use only; the runner serializes calls.
type Cycle struct {
	cfg     Config
	deps    Deps
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	tracer  trace.Tracer
	now     func() time.Time
}

func NewCycle(cfg Config, deps Deps, logger core.ILogger) (*Cycle, error) {
	switch {
	case deps.Broker == nil:
		return nil, errors.New("live cycle requires a broker")
	case deps.Orders == nil:
		return nil, errors.New("live cycle requires an order executor")
	case deps.Fetcher == nil:
		return nil, errors.New("live cycle requires a bar fetcher")
	case deps.Pipeline == nil:
		return nil, errors.New("live cycle requires a feature pipeline")
	case deps.Strategy == nil:
		return nil, errors.New("live cycle requires a strategy")
	case deps.Store == nil:
		return nil, errors.New("live cycle requires a state store")
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1Day"
	}
	return &Cycle{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.WithField("component", "live_cycle"),
		metrics: telemetry.GetGlobalMetrics(),
		tracer:  telemetry.GetTracer("live-cycle"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the cycle's notion of now.
func (c *Cycle) SetClock(now func() time.Time) {
	c.now = now
}

// Run executes one cycle. Per-symbol failures are logged and skipped; the
// returned error covers only account access and persisting state.
func (c *Cycle) Run(ctx context.Context) error {
	_, err := c.RunReport(ctx)
	return err
}

// RunReport is Run returning what happened to each symbol.
func (c *Cycle) RunReport(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "live.Cycle")
	defer span.End()
	defer func() {
		c.metrics.RecordCycle(ctx, float64(time.Since(start).Milliseconds()))
	}()

	states := c.loadStates(ctx)

	acct, err := c.deps.Broker.Account(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	c.logger.Info("Cycle started",
		"cash", acct.Cash.StringFixed(2),
		"buying_power", acct.BuyingPower.StringFixed(2),
		"symbols", len(c.cfg.Symbols))

	run := &cycleRun{cash: acct.Cash, buyingPower: acct.BuyingPower}
	report := &Report{}
	for _, symbol := range c.cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		rec, outcome, err := c.processGuarded(ctx, run, symbol, states[symbol])
		switch {
		case err != nil:
			c.metrics.RecordSymbolError(ctx, symbol)
			c.logger.Error("Symbol failed", "symbol", symbol, "error", err)
			report.Failed = append(report.Failed, symbol)
		case outcome.skipped:
			report.Skipped = append(report.Skipped, symbol)
		default:
			states[symbol] = rec
			c.metrics.SetCooldown(symbol, rec.Cooldown)
			report.Processed = append(report.Processed, symbol)
			if outcome.order != nil {
				report.Orders = append(report.Orders, *outcome.order)
			}
		}
	}
	c.metrics.SetEquity(acct.Cash.Add(run.positions).InexactFloat64())

	if err := c.deps.Store.Save(ctx, states); err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("save state: %w", err)
	}
	span.SetAttributes(
		attribute.Int("processed", len(report.Processed)),
		attribute.Int("orders", len(report.Orders)),
	)
	c.logger.Info("Cycle complete",
		"processed", len(report.Processed),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"orders", len(report.Orders))
	return report, nil
}

// loadStates falls back to a cold start when the store is unreadable.
func (c *Cycle) loadStates(ctx context.Context) map[string]core.SymbolState {
	states, err := c.deps.Store.Load(ctx)
	if err != nil {
		c.logger.Warn("State unreadable, starting cold", "error", err)
		return map[string]core.SymbolState{}
	}
	if states == nil {
		return map[string]core.SymbolState{}
	}
	return states
}

// cycleRun is the account view shared by the symbols of one cycle.
type cycleRun struct {
	cash        decimal.Decimal
	buyingPower decimal.Decimal
	positions   decimal.Decimal
}

type symbolOutcome struct {
	skipped bool
	order   *core.Order
}

func (c *Cycle) processGuarded(ctx context.Context, run *cycleRun, symbol string, prev core.SymbolState) (rec core.SymbolState, out symbolOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			c.logger.Error("Recovered panic", "symbol", symbol, "stack", string(debug.Stack()))
		}
	}()
	return c.processSymbol(ctx, run, symbol, prev)
}

func (c *Cycle) processSymbol(ctx context.Context, run *cycleRun, symbol string, rec core.SymbolState) (core.SymbolState, symbolOutcome, error) {
	logger := c.logger.WithField("symbol", symbol)
	end := c.now()
	start := end.AddDate(0, 0, -c.cfg.LookbackDays)

	raw := c.deps.Fetcher.Fetch(ctx, symbol, c.cfg.Timeframe, start, end)
	if len(raw) < c.cfg.MinHistory {
		logger.Info("Skipping, insufficient data", "rows", len(raw), "required", c.cfg.MinHistory)
		return rec, symbolOutcome{skipped: true}, nil
	}
	bars := c.deps.Pipeline.Annotate(raw)
	if len(bars) == 0 {
		logger.Info("Skipping, no rows after warm-up", "rows", len(raw))
		return rec, symbolOutcome{skipped: true}, nil
	}
	latest := bars[len(bars)-1]
	price := latest.Close

	pos, err := c.deps.Broker.Position(ctx, symbol)
	if err != nil {
		return rec, symbolOutcome{}, fmt.Errorf("fetch position: %w", err)
	}
	qty := pos.Quantity
	holding := qty.IsPositive()

	// Reality sync: the broker's position wins over the persisted record.
	if !holding {
		rec.HighestPrice = decimal.Zero
		rec.EntryPrice = decimal.Zero
	} else {
		if price.GreaterThan(rec.HighestPrice) {
			rec.HighestPrice = price
		}
		if rec.EntryPrice.IsZero() {
			rec.EntryPrice = pos.AvgEntryPrice
		}
	}
	if rec.Cooldown > 0 {
		rec.Cooldown--
	}

	state := core.PositionState{
		Version:      core.PositionStateVersion,
		Holding:      holding,
		EntryPrice:   rec.EntryPrice,
		HighestPrice: rec.HighestPrice,
		Cooldown:     rec.Cooldown,
	}
	run.positions = run.positions.Add(qty.Mul(price))
	equity := run.cash.Add(qty.Mul(price))

	decision, err := c.deps.Strategy.Decide(latest, state, symbol, equity)
	if err != nil {
		return rec, symbolOutcome{}, fmt.Errorf("strategy %s: %w", c.deps.Strategy.Name(), err)
	}
	if decision.Action != core.ActionHold {
		logger.Info("Signal", "action", decision.Action, "price", price.String())
	}

	switch {
	case decision.Action == core.ActionBuySignal && !holding && rec.Cooldown == 0:
		return c.enter(ctx, logger, run, symbol, price, rec)
	case decision.Action == core.ActionSellSignal && holding:
		return c.exit(ctx, logger, symbol, price, qty, rec)
	}
	return rec, symbolOutcome{}, nil
}

func (c *Cycle) enter(ctx context.Context, logger core.ILogger, run *cycleRun, symbol string, price decimal.Decimal, rec core.SymbolState) (core.SymbolState, symbolOutcome, error) {
	if c.deps.Breaker != nil && c.deps.Breaker.IsTripped() {
		logger.Warn("Entry blocked by loss circuit breaker")
		return rec, symbolOutcome{}, nil
	}

	buffer := c.deps.Fill.Buffer(c.deps.Fill.Classifier.Class(symbol))
	alloc := run.buyingPower.Mul(buffer)
	if !alloc.GreaterThan(price.Mul(minAllocFraction)) {
		logger.Info("Allocation too small", "alloc", alloc.StringFixed(2), "price", price.String())
		return rec, symbolOutcome{}, nil
	}
	qty := c.deps.Fill.LiveQuantity(alloc, price)
	if !qty.IsPositive() {
		return rec, symbolOutcome{}, nil
	}

	order, err := c.deps.Orders.PlaceMarketOrder(ctx, symbol, core.SideBuy, qty)
	if err != nil {
		return rec, symbolOutcome{}, err
	}
	rec.EntryPrice = price
	rec.HighestPrice = price
	run.buyingPower = run.buyingPower.Sub(alloc)
	run.cash = run.cash.Sub(alloc)

	logger.Info("Entered position", "qty", qty.String(), "alloc", alloc.StringFixed(2))
	c.notify(ctx, "Live BUY", symbol, map[string]string{
		"qty":   qty.String(),
		"price": price.String(),
		"alloc": alloc.StringFixed(2),
	})
	return rec, symbolOutcome{order: order}, nil
}

func (c *Cycle) exit(ctx context.Context, logger core.ILogger, symbol string, price, qty decimal.Decimal, rec core.SymbolState) (core.SymbolState, symbolOutcome, error) {
	order, err := c.deps.Orders.PlaceMarketOrder(ctx, symbol, core.SideSell, qty)
	if err != nil {
		return rec, symbolOutcome{}, err
	}

	exitPrice := price
	if order != nil && order.Price.IsPositive() {
		exitPrice = order.Price
	}
	pnl := exitPrice.Sub(rec.EntryPrice).Mul(qty)
	if c.deps.Breaker != nil && rec.EntryPrice.IsPositive() {
		c.deps.Breaker.RecordTrade(pnl)
	}

	rec.EntryPrice = decimal.Zero
	rec.HighestPrice = decimal.Zero
	rec.Cooldown = c.cfg.CooldownCycles

	logger.Info("Exited position", "qty", qty.String(), "pnl", pnl.StringFixed(2))
	c.notify(ctx, "Live SELL", symbol, map[string]string{
		"qty":   qty.String(),
		"price": exitPrice.String(),
		"pnl":   pnl.StringFixed(2),
	})
	return rec, symbolOutcome{order: order}, nil
}

func (c *Cycle) notify(ctx context.Context, title, symbol string, fields map[string]string) {
	if c.deps.Notifier == nil {
		return
	}
	fields["symbol"] = symbol
	c.deps.Notifier.Notify(ctx, title, fmt.Sprintf("%s %s", title, symbol), fields)
}
