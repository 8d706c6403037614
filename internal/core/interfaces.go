// Package core defines the shared types and collaborator interfaces of the walk-forward engine
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy turns one bar plus the threaded position state into a decision.
// Implementations must be deterministic and free of side effects, and must
// accept an empty state as "not holding".
type Strategy interface {
	Name() string
	Decide(bar Bar, state PositionState, symbol string, equity decimal.Decimal) (Decision, error)
}

// BarFetcher loads daily bars for a symbol. Failures are logged and yield an
// empty slice.
type BarFetcher interface {
	Fetch(ctx context.Context, symbol, timeframe string, start, end time.Time) []Bar
}

// FeaturePipeline attaches indicator columns to a time-ordered series and
// drops the warm-up rows. It must be idempotent.
type FeaturePipeline interface {
	Annotate(bars []Bar) []Bar
}

// StateStore persists the live trader's per-symbol records. Save overwrites
// the whole map.
type StateStore interface {
	Load(ctx context.Context) (map[string]SymbolState, error)
	Save(ctx context.Context, states map[string]SymbolState) error
}

// Broker is the account and order surface of a brokerage.
type Broker interface {
	Account(ctx context.Context) (AccountInfo, error)
	Position(ctx context.Context, symbol string) (PositionInfo, error)
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// IOrderExecutor places market orders on behalf of the live cycle.
type IOrderExecutor interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal) (*Order, error)
}

// INotifier delivers operator notifications.
type INotifier interface {
	Notify(ctx context.Context, title, message string, fields map[string]string)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
