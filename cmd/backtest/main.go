// Command backtest replays a universe of symbols through a strategy over one
// or more walk-forward periods and writes a report per period.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"walkforward/internal/bootstrap"
	"walkforward/internal/config"
	"walkforward/internal/core"
	"walkforward/internal/engine/walkforward"
	"walkforward/internal/report"
	"walkforward/pkg/concurrency"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

// warmupDays of extra history are fetched so indicators are complete at the
// start of the deepest period.
const warmupDays = 365

// dataDelay keeps the fetch window clear of the provider's most recent,
// possibly incomplete, bars.
const dataDelay = 15 * time.Minute

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "backtest version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	bootstrap.Version = version
	app, err := bootstrap.NewAppFromConfig(cfg, "walkforward-backtest", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	runErr := app.Run(bootstrap.RunnerFunc(func(ctx context.Context) error {
		_, err := run(ctx, opts, cfg, app.Logger, os.Stdout)
		return err
	}))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return bootstrap.LoadConfig(path)
}

// run executes a batch backtest and returns its outcomes.
func run(ctx context.Context, opts options, cfg *config.Config, logger core.ILogger, stdout io.Writer) ([]walkforward.Outcome, error) {
	if err := opts.apply(cfg); err != nil {
		return nil, err
	}
	label, err := opts.selectUniverse(cfg)
	if err != nil {
		return nil, err
	}
	periods, maxDays, err := walkforward.ParsePeriods(opts.periodInput(cfg))
	if err != nil {
		return nil, err
	}

	session, err := bootstrap.NewSession(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer session.Alerts.Flush()

	strat, err := session.Strategy("")
	if err != nil {
		return nil, err
	}

	logger.Info("Batch backtest",
		"universe", label,
		"strategy", strat.Name(),
		"periods", len(periods),
		"fetch_days", maxDays+warmupDays,
	)

	cache := fetchUniverse(ctx, session, cfg.Universe.Full(), maxDays+warmupDays, logger)
	if len(cache) == 0 {
		return nil, fmt.Errorf("%w: nothing cached for %s", apperrors.ErrNoData, label)
	}

	engine := walkforward.NewEngine(walkforward.Options{
		Strategy:            strat,
		Fill:                session.Fill,
		DepositAmount:       decimal.NewFromFloat(cfg.Account.RecurringInvestment.Amount),
		DepositIntervalDays: cfg.Account.RecurringInvestment.IntervalDays,
	}, logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "backtest",
		MaxWorkers: cfg.Concurrency.BacktestWorkers,
	}, logger)
	defer pool.Stop()

	sink := report.NewWriter(opts.outDir, opts.jsonl, logger)
	batch := walkforward.NewBatch(engine, pool, sink, logger)

	outcomes, err := batch.Run(ctx, label, cache, periods, decimal.NewFromFloat(cfg.Account.InitialCapital))
	if err != nil {
		return outcomes, err
	}

	printSummary(stdout, outcomes)
	session.Alerts.Notify(ctx, "Backtest complete", fmt.Sprintf("%s %s finished %d periods", strat.Name(), label, len(periods)), map[string]string{
		"strategy": strat.Name(),
		"universe": label,
	})
	return outcomes, nil
}

// fetchUniverse loads and annotates each symbol once. Symbols without data or
// without a complete indicator row are left out.
func fetchUniverse(ctx context.Context, session *bootstrap.Session, symbols []string, days int, logger core.ILogger) map[string][]core.Bar {
	end := time.Now().UTC().Add(-dataDelay)
	start := end.AddDate(0, 0, -days)

	cache := make(map[string][]core.Bar, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		raw := session.Data.Fetch(ctx, sym, session.Cfg.Live.Timeframe, start, end)
		if len(raw) == 0 {
			logger.Warn("No bars", "symbol", sym)
			continue
		}
		bars := session.Pipeline.Annotate(raw)
		if len(bars) == 0 {
			logger.Warn("No indicators", "symbol", sym, "raw", len(raw))
			continue
		}
		cache[sym] = bars
		logger.Info("Cached", "symbol", sym, "bars", len(bars))
	}
	return cache
}

func printSummary(w io.Writer, outcomes []walkforward.Outcome) {
	for _, o := range outcomes {
		if o.Result == nil {
			fmt.Fprintf(w, "%-10s no data\n", o.Period.Label())
			continue
		}
		fmt.Fprintf(w, "%-10s invested $%s  final $%s\n",
			o.Period.Label(),
			o.Result.TotalInvested.StringFixed(2),
			o.Result.FinalEquity.StringFixed(2),
		)
	}
}
