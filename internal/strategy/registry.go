// Package strategy holds the built-in trading strategies and the registry
// that resolves operator selections to them.
package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
)

// ID names a built-in strategy.
type ID string

const (
	IDDonchian         ID = "donchian"
	IDDonchianTrailing ID = "donchian_trailing"
	IDSMATrend         ID = "sma_trend"
)

var aliases = map[string]ID{
	"1": IDDonchian,
	"2": IDDonchianTrailing,
	"3": IDSMATrend,
}

// NotFoundError is returned for a selection outside the closed set.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("strategy %q not found", e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return apperrors.ErrStrategyNotFound
}

// ParseID resolves a name or numeric alias. Matching is exact after trimming
// and lower-casing.
func ParseID(key string) (ID, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if id, ok := aliases[k]; ok {
		return id, nil
	}
	switch ID(k) {
	case IDDonchian, IDDonchianTrailing, IDSMATrend:
		return ID(k), nil
	}
	return "", &NotFoundError{Key: key}
}

// Params tunes the built-in strategies.
type Params struct {
	TrailPct decimal.Decimal
}

// DefaultParams returns an 8% trailing stop.
func DefaultParams() Params {
	return Params{TrailPct: decimal.RequireFromString("0.08")}
}

// Registry builds strategies by ID.
type Registry struct {
	params Params
}

// NewRegistry returns a registry over the built-in strategies.
func NewRegistry(params Params) *Registry {
	return &Registry{params: params}
}

// IDs lists the available strategies in a stable order.
func (r *Registry) IDs() []ID {
	ids := []ID{IDDonchian, IDDonchianTrailing, IDSMATrend}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Select resolves key to a strategy.
func (r *Registry) Select(key string) (core.Strategy, error) {
	id, err := ParseID(key)
	if err != nil {
		return nil, err
	}
	switch id {
	case IDDonchianTrailing:
		return DonchianTrailing{TrailPct: r.params.TrailPct}, nil
	case IDSMATrend:
		return SMATrend{}, nil
	default:
		return Donchian{}, nil
	}
}

// Active holds the operator's current strategy. A failed switch keeps the
// previous selection.
type Active struct {
	mu       sync.RWMutex
	registry *Registry
	current  core.Strategy
}

// NewActive selects key as the initial strategy.
func NewActive(registry *Registry, key string) (*Active, error) {
	s, err := registry.Select(key)
	if err != nil {
		return nil, err
	}
	return &Active{registry: registry, current: s}, nil
}

// Current returns the selected strategy.
func (a *Active) Current() core.Strategy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Switch replaces the selection with key.
func (a *Active) Switch(key string) error {
	s, err := a.registry.Select(key)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
	return nil
}

// Name implements core.Strategy by delegating to the current selection.
func (a *Active) Name() string {
	return a.Current().Name()
}

// Decide implements core.Strategy by delegating to the current selection.
func (a *Active) Decide(bar core.Bar, state core.PositionState, symbol string, equity decimal.Decimal) (core.Decision, error) {
	return a.Current().Decide(bar, state, symbol, equity)
}
