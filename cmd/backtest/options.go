package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"walkforward/internal/config"
)

// options are the command-line overrides of a backtest run. Zero values
// keep the configured setting.
type options struct {
	configPath  string
	universe    string
	symbols     string
	periods     string
	capital     float64
	dcaAmount   float64
	dcaInterval int
	strategy    string
	outDir      string
	workers     int
	jsonl       bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file (defaults apply when empty)")
	fs.StringVar(&o.universe, "universe", "full", "Universe to simulate: stocks, crypto or full")
	fs.StringVar(&o.symbols, "symbols", "", "Comma-separated custom universe, overrides -universe")
	fs.StringVar(&o.periods, "periods", "", "Periods such as \"365, 730-365\" (default: account.backtest_days)")
	fs.Float64Var(&o.capital, "capital", 0, "Initial capital (default: account.initial_capital)")
	fs.Float64Var(&o.dcaAmount, "dca-amount", -1, "Recurring deposit amount (default: account.recurring_investment.amount)")
	fs.IntVar(&o.dcaInterval, "dca-interval", 0, "Days between deposits (default: account.recurring_investment.interval_days)")
	fs.StringVar(&o.strategy, "strategy", "", "Strategy name or number (default: strategy.default)")
	fs.StringVar(&o.outDir, "out", "backtest/results", "Directory for reports")
	fs.IntVar(&o.workers, "workers", 0, "Concurrent simulations (default: concurrency.backtest_workers)")
	fs.BoolVar(&o.jsonl, "jsonl", false, "Also export each ledger as JSONL")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.capital < 0 {
		return o, errors.New("-capital must not be negative")
	}
	if o.dcaInterval < 0 {
		return o, errors.New("-dca-interval must not be negative")
	}
	return o, nil
}

// apply folds the overrides into cfg and re-validates it.
func (o options) apply(cfg *config.Config) error {
	if o.capital > 0 {
		cfg.Account.InitialCapital = o.capital
	}
	if o.dcaAmount >= 0 {
		cfg.Account.RecurringInvestment.Amount = o.dcaAmount
	}
	if o.dcaInterval > 0 {
		cfg.Account.RecurringInvestment.IntervalDays = o.dcaInterval
	}
	if o.strategy != "" {
		cfg.Strategy.Default = o.strategy
	}
	if o.workers > 0 {
		cfg.Concurrency.BacktestWorkers = o.workers
	}
	return cfg.Validate()
}

// selectUniverse narrows cfg.Universe to the chosen symbols and returns the
// label used in reports.
func (o options) selectUniverse(cfg *config.Config) (string, error) {
	if strings.TrimSpace(o.symbols) != "" {
		var u config.UniverseConfig
		for _, s := range strings.Split(o.symbols, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			switch {
			case s == "":
			case strings.Contains(s, "/"):
				u.Crypto = append(u.Crypto, s)
			default:
				u.Stocks = append(u.Stocks, s)
			}
		}
		if len(u.Full()) == 0 {
			return "", errors.New("-symbols is empty")
		}
		cfg.Universe = u
		return "Custom", nil
	}

	var label string
	switch strings.ToLower(o.universe) {
	case "stocks", "1":
		cfg.Universe.Crypto, label = nil, "Stocks"
	case "crypto", "2":
		cfg.Universe.Stocks, label = nil, "Crypto"
	case "full", "3":
		label = "Full"
	default:
		return "", fmt.Errorf("unknown universe %q", o.universe)
	}
	if len(cfg.Universe.Full()) == 0 {
		return "", fmt.Errorf("universe %s has no symbols", label)
	}
	return label, nil
}

// periodInput returns the -periods flag or the configured default window.
func (o options) periodInput(cfg *config.Config) string {
	if strings.TrimSpace(o.periods) != "" {
		return o.periods
	}
	return fmt.Sprintf("%d", cfg.Account.BacktestDays)
}
