// Package bootstrap wires configuration, logging, telemetry and the trading
// collaborators shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"walkforward/internal/config"
	"walkforward/pkg/logging"
	"walkforward/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// App represents the application context and holds core dependencies.
type App struct {
	Cfg       *config.Config
	Logger    *logging.ZapLogger
	Telemetry *telemetry.Telemetry
}

// NewApp loads the configuration, starts telemetry when metrics are enabled
// and builds the logger. Telemetry comes first so log records reach the
// OTel log provider.
func NewApp(configPath, serviceName string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return NewAppFromConfig(cfg, serviceName, os.Stdout)
}

// Version is reported as service.version; binaries overwrite it from their
// build flags before building the App.
var Version = "dev"

// serviceMode labels telemetry by where orders go.
func serviceMode(cfg *config.Config) string {
	if cfg.Broker.Type == "alpaca" && !cfg.Account.PaperMode {
		return "live"
	}
	return "paper"
}

// NewAppFromConfig is NewApp for an already loaded configuration. Console
// logs go to w.
func NewAppFromConfig(cfg *config.Config, serviceName string, w io.Writer) (*App, error) {
	app := &App{Cfg: cfg}

	if cfg.Telemetry.EnableMetrics {
		// spans and OTel log records are only echoed in debug mode
		var sink io.Writer = io.Discard
		if cfg.System.LogLevel == "DEBUG" {
			sink = os.Stderr
		}
		tel, err := telemetry.SetupWithConfig(telemetry.Config{
			ServiceName: serviceName,
			Version:     Version,
			Mode:        serviceMode(cfg),
			Writer:      sink,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		app.Telemetry = tel
	}

	logger, err := logging.NewZapLoggerWithWriter(cfg.System.LogLevel, w)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	app.Logger = logger
	return app, nil
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Run starts every runner and blocks until all return or SIGINT/SIGTERM
// cancels them. A runner failure cancels the others.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx, runners...)
}

// RunContext is Run under a caller-supplied context.
func (a *App) RunContext(ctx context.Context, runners ...Runner) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application", "runners", len(runners))
	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Close flushes telemetry and the logger.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Logger != nil {
		// stdout cannot be fsynced on most platforms
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
