package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"walkforward/internal/config"
	"walkforward/internal/marketdata"
	"walkforward/internal/mock"
	apperrors "walkforward/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	o, err := parseOptions([]string{
		"-periods", "365, 730-365",
		"-capital", "2500",
		"-dca-amount", "100",
		"-dca-interval", "14",
		"-strategy", "2",
		"-symbols", "spy, btc/usd",
		"-jsonl",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "365, 730-365", o.periods)
	assert.Equal(t, 2500.0, o.capital)
	assert.Equal(t, 100.0, o.dcaAmount)
	assert.Equal(t, 14, o.dcaInterval)
	assert.Equal(t, "2", o.strategy)
	assert.True(t, o.jsonl)
	assert.Equal(t, "backtest/results", o.outDir)
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"negative capital", []string{"-capital", "-5"}},
		{"negative interval", []string{"-dca-interval", "-1"}},
		{"positional", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	cfg := config.DefaultConfig()
	o, err := parseOptions([]string{"-capital", "500", "-dca-amount", "0", "-strategy", "sma_trend", "-workers", "2"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, o.apply(cfg))

	assert.Equal(t, 500.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.0, cfg.Account.RecurringInvestment.Amount)
	assert.Equal(t, "sma_trend", cfg.Strategy.Default)
	assert.Equal(t, 2, cfg.Concurrency.BacktestWorkers)

	// defaults leave the configuration alone
	cfg = config.DefaultConfig()
	cfg.Account.RecurringInvestment.Amount = 50
	o, err = parseOptions(nil, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, o.apply(cfg))
	assert.Equal(t, 50.0, cfg.Account.RecurringInvestment.Amount)
	assert.Equal(t, "365", o.periodInput(cfg))
}

func TestOptions_SelectUniverse(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantLabel string
		want      []string
		wantErr   bool
	}{
		{"full", nil, "Full", []string{"SPY", "QQQ", "BTC/USD", "ETH/USD"}, false},
		{"stocks", []string{"-universe", "stocks"}, "Stocks", []string{"SPY", "QQQ"}, false},
		{"crypto by number", []string{"-universe", "2"}, "Crypto", []string{"BTC/USD", "ETH/USD"}, false},
		{"custom", []string{"-symbols", "aapl, eth/usd,"}, "Custom", []string{"AAPL", "ETH/USD"}, false},
		{"empty custom", []string{"-symbols", " , "}, "", nil, true},
		{"unknown", []string{"-universe", "bonds"}, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOptions(tt.args, &bytes.Buffer{})
			require.NoError(t, err)
			cfg := config.DefaultConfig()

			label, err := o.selectUniverse(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
			assert.Equal(t, tt.want, cfg.Universe.Full())
		})
	}
}

func offlineConfig(t *testing.T, symbols ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	start := marketdata.TruncateDay(time.Now().UTC()).AddDate(0, 0, -599)
	closes := mock.Wave(600, 100, 20, 60)
	for _, sym := range symbols {
		require.NoError(t, marketdata.WriteCSV(dir, sym, mock.Bars(sym, start, closes...)))
	}

	cfg := config.DefaultConfig()
	cfg.Data.Source = "csv"
	cfg.Data.CSVDir = dir
	cfg.Telemetry.EnableMetrics = false
	return cfg
}

func TestRun_WritesReports(t *testing.T) {
	cfg := offlineConfig(t, "SPY", "QQQ")
	out := t.TempDir()
	o, err := parseOptions([]string{"-universe", "stocks", "-periods", "365, 200-100", "-out", out, "-jsonl"}, &bytes.Buffer{})
	require.NoError(t, err)

	var stdout bytes.Buffer
	outcomes, err := run(context.Background(), o, cfg, &mock.NoopLogger{}, &stdout)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, oc := range outcomes {
		require.NotNil(t, oc.Result, oc.Period.Label())
		assert.Equal(t, "Stocks", oc.Universe)
		assert.Equal(t, "donchian", oc.Strategy)
	}

	files, err := filepath.Glob(filepath.Join(out, "donchian", "backtest_Stocks_*"))
	require.NoError(t, err)
	assert.Len(t, files, 4)
	assert.Contains(t, stdout.String(), "365-0")
	assert.Contains(t, stdout.String(), "200-100")
}

func TestRun_NoData(t *testing.T) {
	cfg := offlineConfig(t)
	o, err := parseOptions([]string{"-symbols", "SPY", "-out", t.TempDir()}, &bytes.Buffer{})
	require.NoError(t, err)

	_, err = run(context.Background(), o, cfg, &mock.NoopLogger{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestRun_BadPeriods(t *testing.T) {
	cfg := offlineConfig(t, "SPY")
	o, err := parseOptions([]string{"-periods", "abc", "-out", t.TempDir()}, &bytes.Buffer{})
	require.NoError(t, err)

	_, err = run(context.Background(), o, cfg, &mock.NoopLogger{}, &bytes.Buffer{})
	assert.Error(t, err)

	entries, _ := os.ReadDir(cfg.Data.CSVDir)
	assert.Len(t, entries, 1)
}
