// Package paper implements an in-memory brokerage that fills market orders at
// the last quote.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteSource supplies the price market orders fill at.
type QuoteSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type position struct {
	qty      decimal.Decimal
	avgEntry decimal.Decimal
}

// Broker is a cash account with long-only positions. Buying power equals cash.
type Broker struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	positions map[string]*position
	orders    []core.Order
	quotes    QuoteSource
	overrides map[string]decimal.Decimal
	logger    core.ILogger
	now       func() time.Time
}

// NewBroker creates a paper account holding startingCash.
func NewBroker(startingCash decimal.Decimal, quotes QuoteSource, logger core.ILogger) *Broker {
	return &Broker{
		cash:      startingCash,
		positions: make(map[string]*position),
		quotes:    quotes,
		overrides: make(map[string]decimal.Decimal),
		logger:    logger.WithField("component", "paper_broker"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetQuote pins the fill price for symbol, taking precedence over the quote source.
func (b *Broker) SetQuote(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[symbol] = price
}

func (b *Broker) Account(_ context.Context) (core.AccountInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return core.AccountInfo{Cash: b.cash, BuyingPower: b.cash}, nil
}

// Position returns a zero-quantity snapshot for symbols not held.
func (b *Broker) Position(_ context.Context, symbol string) (core.PositionInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	if !ok {
		return core.PositionInfo{Symbol: symbol}, nil
	}
	return core.PositionInfo{Symbol: symbol, Quantity: p.qty, AvgEntryPrice: p.avgEntry}, nil
}

// SubmitMarketOrder fills immediately at the current quote.
func (b *Broker) SubmitMarketOrder(ctx context.Context, req core.OrderRequest) (*core.Order, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity %s", apperrors.ErrInvalidOrderParameter, req.Quantity)
	}
	price, err := b.quote(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	notional := price.Mul(req.Quantity)
	switch req.Side {
	case core.SideBuy:
		if notional.GreaterThan(b.cash) {
			return nil, fmt.Errorf("%w: need %s, have %s", apperrors.ErrInsufficientFunds, notional.StringFixed(2), b.cash.StringFixed(2))
		}
		p, ok := b.positions[req.Symbol]
		if !ok {
			p = &position{}
			b.positions[req.Symbol] = p
		}
		cost := p.qty.Mul(p.avgEntry).Add(notional)
		p.qty = p.qty.Add(req.Quantity)
		p.avgEntry = cost.Div(p.qty)
		b.cash = b.cash.Sub(notional)
	case core.SideSell:
		p, ok := b.positions[req.Symbol]
		if !ok || req.Quantity.GreaterThan(p.qty) {
			return nil, fmt.Errorf("%w: sell %s exceeds position", apperrors.ErrInvalidOrderParameter, req.Quantity)
		}
		p.qty = p.qty.Sub(req.Quantity)
		if p.qty.IsZero() {
			delete(b.positions, req.Symbol)
		}
		b.cash = b.cash.Add(notional)
	default:
		return nil, fmt.Errorf("%w: side %q", apperrors.ErrInvalidOrderParameter, req.Side)
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	order := core.Order{
		ID:            uuid.NewString(),
		ClientOrderID: clientID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         price,
		Status:        "filled",
		CreatedAt:     b.now(),
	}
	b.orders = append(b.orders, order)

	b.logger.Info("Paper order filled",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Quantity.String(),
		"price", price.String(),
		"cash", b.cash.StringFixed(2),
	)
	return &order, nil
}

// Orders returns the fill history.
func (b *Broker) Orders() []core.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Order, len(b.orders))
	copy(out, b.orders)
	return out
}

func (b *Broker) quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.RLock()
	price, ok := b.overrides[symbol]
	b.mu.RUnlock()
	if ok {
		return price, nil
	}
	if b.quotes == nil {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s", apperrors.ErrInvalidSymbol, symbol)
	}
	price, err := b.quotes.LastPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: quote %s: %w", apperrors.ErrInvalidSymbol, symbol, err)
	}
	return price, nil
}
