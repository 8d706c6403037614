// Package order provides order execution functionality with rate limiting and retry logic
package order

import (
	"context"
	"fmt"
	"sync"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"
	"walkforward/pkg/retry"
	"walkforward/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Executor implements core.IOrderExecutor on top of a core.Broker
type Executor struct {
	broker core.Broker
	logger core.ILogger

	mu          sync.RWMutex
	rateLimiter *rate.Limiter
	policy      retry.RetryPolicy
	newID       func() string

	// OTel
	tracer       trace.Tracer
	orderCounter metric.Int64Counter
	retryCounter metric.Int64Counter
	failCounter  metric.Int64Counter
}

// NewExecutor creates an executor allowing 3 orders/second with a burst of 5
func NewExecutor(broker core.Broker, logger core.ILogger) *Executor {
	tracer := telemetry.GetTracer("order-executor")
	meter := telemetry.GetMeter("order-executor")

	orderCounter, _ := meter.Int64Counter("order_placements_total",
		metric.WithDescription("Total number of orders placed"))
	retryCounter, _ := meter.Int64Counter("order_retries_total",
		metric.WithDescription("Total number of order placement retries"))
	failCounter, _ := meter.Int64Counter("order_failures_total",
		metric.WithDescription("Total number of order placement failures"))

	return &Executor{
		broker:       broker,
		logger:       logger.WithField("component", "order_executor"),
		rateLimiter:  rate.NewLimiter(rate.Limit(3), 5),
		policy:       retry.DefaultPolicy,
		newID:        uuid.NewString,
		tracer:       tracer,
		orderCounter: orderCounter,
		retryCounter: retryCounter,
		failCounter:  failCounter,
	}
}

// SetRateLimit updates the rate limit
func (e *Executor) SetRateLimit(limit float64, burst int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rateLimiter = rate.NewLimiter(rate.Limit(limit), burst)
}

// SetRetryPolicy replaces the retry policy
func (e *Executor) SetRetryPolicy(p retry.RetryPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// PlaceMarketOrder submits a market order. Every attempt reuses one client
// order id so a broker that saw a timed-out attempt rejects the duplicate.
func (e *Executor) PlaceMarketOrder(ctx context.Context, symbol string, side core.OrderSide, qty decimal.Decimal) (*core.Order, error) {
	ctx, span := e.tracer.Start(ctx, "PlaceMarketOrder",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("side", string(side)),
		),
	)
	defer span.End()

	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity %s", apperrors.ErrInvalidOrderParameter, qty)
	}

	e.mu.RLock()
	limiter, policy := e.rateLimiter, e.policy
	e.mu.RUnlock()

	req := core.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		ClientOrderID: e.newID(),
	}
	attrs := metric.WithAttributes(attribute.String("symbol", symbol), attribute.String("side", string(side)))

	var (
		order    *core.Order
		attempts int
	)
	err := retry.Do(ctx, policy, retry.IsTransient, func() error {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		attempts++
		if attempts > 1 {
			e.retryCounter.Add(ctx, 1, attrs)
			e.logger.Warn("Retrying order", "symbol", symbol, "side", side, "attempt", attempts)
		}
		var err error
		order, err = e.broker.SubmitMarketOrder(ctx, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		e.failCounter.Add(ctx, 1, attrs)
		e.logger.Error("Order failed",
			"symbol", symbol,
			"side", side,
			"qty", qty.String(),
			"client_order_id", req.ClientOrderID,
			"error", err)
		return nil, fmt.Errorf("place %s %s: %w", side, symbol, err)
	}

	e.orderCounter.Add(ctx, 1, attrs)
	telemetry.GetGlobalMetrics().RecordOrder(ctx, symbol, string(side))
	e.logger.Info("Order placed",
		"symbol", symbol,
		"side", side,
		"qty", qty.String(),
		"order_id", order.ID,
		"client_order_id", req.ClientOrderID)
	return order, nil
}
