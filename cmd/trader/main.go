// Command trader runs the live polling loop against the configured broker.
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
	"walkforward/internal/engine/live"
	"walkforward/internal/infrastructure/health"
	"walkforward/internal/infrastructure/server"
	"walkforward/internal/risk"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

// staleCycles of missed polls mark the runner unhealthy.
const staleCycles = 3

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	strategyKey := flag.String("strategy", "", "Strategy name or number (overrides config)")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("trader version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyKey != "" {
		cfg.Strategy.Default = *strategyKey
	}

	bootstrap.Version = version
	app, err := bootstrap.NewAppFromConfig(cfg, "walkforward-trader", os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	app.Logger.Info("Starting trader",
		"version", version,
		"broker", cfg.Broker.Type,
		"data", cfg.Data.Source,
		"symbols", len(cfg.Universe.Full()),
		"poll_interval", cfg.Live.PollInterval.String(),
	)

	t, err := newTrader(cfg, app.Logger)
	if err != nil {
		app.Logger.Error("Failed to assemble trader", "error", err)
		_ = app.Close(context.Background())
		os.Exit(1)
	}

	var runErr error
	if *once {
		runErr = t.runner.RunOnce(context.Background())
	} else {
		runErr = app.Run(t)
	}

	t.close(app.Logger)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// trader owns the live runner and the resources that outlive single cycles.
type trader struct {
	cfg     *config.Config
	session *bootstrap.Session
	runner  *live.Runner
	breaker *risk.CircuitBreaker
	store   io.Closer
	health  *health.HealthManager
	server  *server.HealthServer
	logger  core.ILogger
}

func newTrader(cfg *config.Config, logger core.ILogger) (*trader, error) {
	session, err := bootstrap.NewSession(cfg, logger)
	if err != nil {
		return nil, err
	}
	strat, err := session.Strategy("")
	if err != nil {
		return nil, err
	}
	cycle, breaker, store, err := session.LiveCycle(strat)
	if err != nil {
		return nil, err
	}
	runner := live.NewRunner(cycle, cfg.Live.PollInterval, logger)

	hm := health.NewHealthManager(logger)
	hm.Register("runner", func() error {
		return runner.Health(staleCycles * cfg.Live.PollInterval)
	})
	hm.Register("circuit_breaker", func() error {
		if st := breaker.Status(); st.State == risk.CircuitOpen {
			return errors.New(st.Reason)
		}
		return nil
	})

	t := &trader{
		cfg:     cfg,
		session: session,
		runner:  runner,
		breaker: breaker,
		store:   store,
		health:  hm,
		logger:  logger,
	}
	if cfg.Telemetry.EnableMetrics {
		t.server = server.NewHealthServer(cfg.Telemetry.MetricsPort, logger, hm)
		t.server.UpdateStatus("strategy", strat.Name())
		t.server.UpdateStatus("broker", cfg.Broker.Type)
	}
	return t, nil
}

// Run serves health and metrics, then polls until ctx ends.
func (t *trader) Run(ctx context.Context) error {
	if t.server != nil {
		if err := t.server.Start(); err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := t.server.Stop(stopCtx); err != nil {
				t.logger.Warn("Health server shutdown", "error", err)
			}
		}()
	}

	t.session.Alerts.Notify(ctx, "Trader started", fmt.Sprintf("%s on %s", t.cfg.Strategy.Default, t.cfg.Broker.Type), nil)
	return t.runner.Run(ctx)
}

// close flushes pending alerts and releases the state store.
func (t *trader) close(logger core.ILogger) {
	t.session.Alerts.Flush()
	if err := t.store.Close(); err != nil {
		logger.Warn("Failed to close state store", "error", err)
	}
}
