package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTicksTotal          = "walkforward_ticks_total"
	MetricFillsTotal          = "walkforward_fills_total"
	MetricDepositsTotal       = "walkforward_deposits_total"
	MetricPnLRealizedTotal    = "walkforward_pnl_realized_total"
	MetricRunsTotal           = "walkforward_runs_total"
	MetricLiveCyclesTotal     = "live_cycles_total"
	MetricLiveSymbolErrors    = "live_symbol_errors_total"
	MetricLiveOrdersTotal     = "live_orders_placed_total"
	MetricLiveCycleDuration   = "live_cycle_duration_ms"
	MetricLiveEquity          = "live_equity"
	MetricLiveCooldown        = "live_cooldown_cycles"
	MetricCircuitBreakerOpen  = "live_circuit_breaker_open"
	MetricHTTPRequestDuration = "http_client_request_duration_ms"
)

// MetricsHolder holds initialized instruments. Record helpers are no-ops until
// InitMetrics has run, so engines can be used without telemetry.
type MetricsHolder struct {
	TicksTotal         metric.Int64Counter
	FillsTotal         metric.Int64Counter
	DepositsTotal      metric.Int64Counter
	PnLRealizedTotal   metric.Float64Counter
	RunsTotal          metric.Int64Counter
	LiveCyclesTotal    metric.Int64Counter
	LiveSymbolErrors   metric.Int64Counter
	LiveOrdersTotal    metric.Int64Counter
	LiveCycleDuration  metric.Float64Histogram
	LiveEquity         metric.Float64ObservableGauge
	LiveCooldown       metric.Int64ObservableGauge
	CircuitBreakerOpen metric.Int64ObservableGauge

	// State for observable gauges
	mu          sync.RWMutex
	equity      float64
	cooldownMap map[string]int64
	cbOpen      int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			cooldownMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.TicksTotal, err = meter.Int64Counter(MetricTicksTotal, metric.WithDescription("Clock ticks processed by backtests")); err != nil {
		return err
	}
	if m.FillsTotal, err = meter.Int64Counter(MetricFillsTotal, metric.WithDescription("Simulated fills")); err != nil {
		return err
	}
	if m.DepositsTotal, err = meter.Int64Counter(MetricDepositsTotal, metric.WithDescription("Scheduled deposits applied")); err != nil {
		return err
	}
	if m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss")); err != nil {
		return err
	}
	if m.RunsTotal, err = meter.Int64Counter(MetricRunsTotal, metric.WithDescription("Completed backtest runs")); err != nil {
		return err
	}
	if m.LiveCyclesTotal, err = meter.Int64Counter(MetricLiveCyclesTotal, metric.WithDescription("Completed live cycles")); err != nil {
		return err
	}
	if m.LiveSymbolErrors, err = meter.Int64Counter(MetricLiveSymbolErrors, metric.WithDescription("Per-symbol failures inside live cycles")); err != nil {
		return err
	}
	if m.LiveOrdersTotal, err = meter.Int64Counter(MetricLiveOrdersTotal, metric.WithDescription("Orders placed by the live trader")); err != nil {
		return err
	}
	if m.LiveCycleDuration, err = meter.Float64Histogram(MetricLiveCycleDuration, metric.WithDescription("Live cycle wall time"), metric.WithUnit("ms")); err != nil {
		return err
	}

	m.LiveEquity, err = meter.Float64ObservableGauge(MetricLiveEquity, metric.WithDescription("Account equity seen by the last live cycle"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.equity)
			return nil
		}))
	if err != nil {
		return err
	}

	m.LiveCooldown, err = meter.Int64ObservableGauge(MetricLiveCooldown, metric.WithDescription("Remaining re-entry cooldown per symbol"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.cooldownMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("Loss circuit breaker state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.cbOpen)
			return nil
		}))
	return err
}

func (m *MetricsHolder) RecordTick(ctx context.Context) {
	if m.TicksTotal != nil {
		m.TicksTotal.Add(ctx, 1)
	}
}

func (m *MetricsHolder) RecordFill(ctx context.Context, symbol, side string) {
	if m.FillsTotal != nil {
		m.FillsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol), attribute.String("side", side)))
	}
}

func (m *MetricsHolder) RecordDeposit(ctx context.Context) {
	if m.DepositsTotal != nil {
		m.DepositsTotal.Add(ctx, 1)
	}
}

func (m *MetricsHolder) RecordRealizedPnL(ctx context.Context, symbol string, pnl float64) {
	if m.PnLRealizedTotal != nil {
		m.PnLRealizedTotal.Add(ctx, pnl, metric.WithAttributes(attribute.String("symbol", symbol)))
	}
}

func (m *MetricsHolder) RecordRun(ctx context.Context, strategy string) {
	if m.RunsTotal != nil {
		m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

func (m *MetricsHolder) RecordCycle(ctx context.Context, durationMs float64) {
	if m.LiveCyclesTotal != nil {
		m.LiveCyclesTotal.Add(ctx, 1)
	}
	if m.LiveCycleDuration != nil {
		m.LiveCycleDuration.Record(ctx, durationMs)
	}
}

func (m *MetricsHolder) RecordSymbolError(ctx context.Context, symbol string) {
	if m.LiveSymbolErrors != nil {
		m.LiveSymbolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	}
}

func (m *MetricsHolder) RecordOrder(ctx context.Context, symbol, side string) {
	if m.LiveOrdersTotal != nil {
		m.LiveOrdersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol), attribute.String("side", side)))
	}
}

// Helpers to update observable state

func (m *MetricsHolder) SetEquity(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = value
}

func (m *MetricsHolder) SetCooldown(symbol string, cycles int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldownMap[symbol] = int64(cycles)
}

func (m *MetricsHolder) SetCircuitBreakerOpen(open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpen = val
}

func (m *MetricsHolder) GetCooldowns() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.cooldownMap))
	for k, v := range m.cooldownMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetEquity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

func (m *MetricsHolder) IsCircuitBreakerOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cbOpen == 1
}
