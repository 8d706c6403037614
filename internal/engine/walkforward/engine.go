// Package walkforward replays daily bars for a universe of symbols through a
// strategy, holding at most one position account-wide.
package walkforward

import (
	"context"
	"sort"
	"time"

	"walkforward/internal/core"
	"walkforward/internal/trading/deposit"
	"walkforward/internal/trading/fill"
	"walkforward/internal/trading/ledger"
	"walkforward/internal/trading/portfolio"
	"walkforward/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a simulation.
type Options struct {
	Strategy            core.Strategy
	Fill                fill.Model
	DepositAmount       decimal.Decimal
	DepositIntervalDays int
}

// Result is the outcome of one run.
type Result struct {
	Ledger        *ledger.Ledger
	FinalEquity   decimal.Decimal
	TotalInvested decimal.Decimal
	Ticks         int
	Start         time.Time
	End           time.Time
}

// Engine runs simulations. It keeps no per-run state, so one Engine may serve
// concurrent runs.
type Engine struct {
	opts    Options
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	tracer  trace.Tracer
}

// NewEngine creates an engine for opts.
func NewEngine(opts Options, logger core.ILogger) *Engine {
	return &Engine{
		opts:    opts,
		logger:  logger.WithField("component", "walkforward"),
		metrics: telemetry.GetGlobalMetrics(),
		tracer:  telemetry.GetTracer("walkforward"),
	}
}

// Strategy returns the strategy the engine runs.
func (e *Engine) Strategy() core.Strategy {
	return e.opts.Strategy
}

// timeline indexes every series by day.
type timeline struct {
	symbols []string
	bars    map[string]map[int64]core.Bar
	last    map[string]core.Bar
	clock   []time.Time
}

func buildTimeline(series map[string][]core.Bar) timeline {
	tl := timeline{
		bars: make(map[string]map[int64]core.Bar, len(series)),
		last: make(map[string]core.Bar, len(series)),
	}
	seen := make(map[int64]time.Time)
	for sym, bars := range series {
		if len(bars) == 0 {
			continue
		}
		tl.symbols = append(tl.symbols, sym)
		idx := make(map[int64]core.Bar, len(bars))
		var last core.Bar
		for i, b := range bars {
			k := b.Time.Unix()
			idx[k] = b
			seen[k] = b.Time
			if i == 0 || !b.Time.Before(last.Time) {
				last = b
			}
		}
		tl.bars[sym] = idx
		tl.last[sym] = last
	}
	sort.Strings(tl.symbols)

	tl.clock = make([]time.Time, 0, len(seen))
	for _, t := range seen {
		tl.clock = append(tl.clock, t)
	}
	sort.Slice(tl.clock, func(i, j int) bool { return tl.clock[i].Before(tl.clock[j]) })
	return tl
}

func (tl timeline) at(symbol string, tick time.Time) (core.Bar, bool) {
	b, ok := tl.bars[symbol][tick.Unix()]
	return b, ok
}

// Run walks the global clock. Each tick applies a due deposit, then lets the
// held symbol exit, then, if flat with cash, opens the best BUY. Strategy
// errors abort the run.
func (e *Engine) Run(ctx context.Context, series map[string][]core.Bar, initialCash decimal.Decimal) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "walkforward.Run", trace.WithAttributes(
		attribute.String("strategy", e.opts.Strategy.Name()),
		attribute.Int("symbols", len(series)),
	))
	defer span.End()

	tl := buildTimeline(series)
	if len(tl.clock) == 0 {
		return &Result{Ledger: ledger.New(), FinalEquity: initialCash, TotalInvested: initialCash}, nil
	}

	acc := portfolio.NewAccount(initialCash)
	led := ledger.New()
	invested := initialCash
	sched := deposit.NewSchedule(e.opts.DepositAmount, e.opts.DepositIntervalDays, tl.clock[0])

	for _, tick := range tl.clock {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.metrics.RecordTick(ctx)

		if amt, ok := sched.Fire(tick); ok {
			acc.Deposit(amt)
			invested = invested.Add(amt)
			balance := acc.Cash()
			if pos, held := acc.Position(); held {
				if bar, ok := tl.at(pos.Symbol, tick); ok {
					balance = acc.Equity(bar.Close)
				}
			}
			led.AppendDeposit(tick, amt, balance)
			e.metrics.RecordDeposit(ctx)
		}

		if err := e.exit(ctx, tl, tick, acc, led); err != nil {
			return nil, err
		}
		if err := e.enter(ctx, tl, tick, acc, led); err != nil {
			return nil, err
		}
	}

	final := acc.Cash()
	if pos, held := acc.Position(); held {
		final = acc.Equity(tl.last[pos.Symbol].Close)
	}
	end := tl.clock[len(tl.clock)-1]
	led.Close(end, invested)

	e.metrics.RecordRun(ctx, e.opts.Strategy.Name())
	e.logger.Debug("Walk-forward run complete",
		"strategy", e.opts.Strategy.Name(),
		"ticks", len(tl.clock),
		"trades", len(led.Trades()),
		"invested", invested,
		"final_equity", final,
	)

	return &Result{
		Ledger:        led,
		FinalEquity:   final,
		TotalInvested: invested,
		Ticks:         len(tl.clock),
		Start:         tl.clock[0],
		End:           end,
	}, nil
}

func (e *Engine) exit(ctx context.Context, tl timeline, tick time.Time, acc *portfolio.Account, led *ledger.Ledger) error {
	pos, held := acc.Position()
	if !held {
		return nil
	}
	bar, ok := tl.at(pos.Symbol, tick)
	if !ok {
		return nil
	}

	dec, err := decide(e.opts.Strategy, bar, pos.State, pos.Symbol, acc.Equity(bar.Close))
	if err != nil {
		return err
	}
	acc.UpdateState(dec.State)
	if dec.Action != core.ActionSellSignal {
		return nil
	}

	price := e.opts.Fill.SellPrice(bar.Close)
	revenue := pos.Quantity.Mul(price)
	fee := decimal.Zero
	if e.opts.Fill.ApplyFees {
		fee = e.opts.Fill.FeeFor(pos.Symbol, revenue)
	}
	proceeds := revenue.Sub(fee)
	closed := acc.Close(proceeds)
	pnl := proceeds.Sub(closed.CostBasis)

	led.AppendSell(tick, pos.Symbol, price, pos.Quantity, fee, pnl, acc.Cash())
	e.metrics.RecordFill(ctx, pos.Symbol, string(core.SideSell))
	e.metrics.RecordRealizedPnL(ctx, pos.Symbol, pnl.InexactFloat64())
	return nil
}

func (e *Engine) enter(ctx context.Context, tl timeline, tick time.Time, acc *portfolio.Account, led *ledger.Ledger) error {
	if !acc.IsFlat() || !acc.Cash().IsPositive() {
		return nil
	}

	var p picker
	for _, sym := range tl.symbols {
		bar, ok := tl.at(sym, tick)
		if !ok {
			continue
		}
		dec, err := decide(e.opts.Strategy, bar, core.EmptyState(), sym, acc.Cash())
		if err != nil {
			return err
		}
		p.offer(candidate{symbol: sym, bar: bar, decision: dec})
	}

	best, ok := p.pick()
	if !ok {
		return nil
	}

	cash := acc.Cash()
	price := e.opts.Fill.BuyPrice(best.bar.Close)
	fee := decimal.Zero
	if e.opts.Fill.ApplyFees {
		fee = e.opts.Fill.FeeFor(best.symbol, cash)
	}
	qty := e.opts.Fill.AllInQuantity(cash.Sub(fee), price)
	if !qty.IsPositive() {
		return nil
	}

	acc.Open(best.symbol, qty, cash, core.HeldState(price))
	led.AppendBuy(tick, best.symbol, price, qty, fee, acc.Cash())
	e.metrics.RecordFill(ctx, best.symbol, string(core.SideBuy))
	return nil
}
