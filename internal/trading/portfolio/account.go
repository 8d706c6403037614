// Package portfolio tracks the cash and the single open position of a simulated account.
package portfolio

import (
	"fmt"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
)

// Position is the one open holding of an account.
type Position struct {
	Symbol    string
	Quantity  decimal.Decimal
	CostBasis decimal.Decimal
	State     core.PositionState
}

// Account holds cash and at most one position. Violations of that rule are
// programmer errors and panic.
type Account struct {
	cash     decimal.Decimal
	position *Position
}

// NewAccount returns a flat account funded with cash.
func NewAccount(cash decimal.Decimal) *Account {
	if cash.IsNegative() {
		panic(fmt.Errorf("%w: negative starting cash %s", apperrors.ErrInvariantViolation, cash))
	}
	return &Account{cash: cash}
}

// Cash is the uninvested balance.
func (a *Account) Cash() decimal.Decimal {
	return a.cash
}

// IsFlat reports whether no position is open.
func (a *Account) IsFlat() bool {
	return a.position == nil
}

// Position returns a copy of the open position.
func (a *Account) Position() (Position, bool) {
	if a.position == nil {
		return Position{}, false
	}
	return *a.position, true
}

// Holds reports whether symbol is the open position.
func (a *Account) Holds(symbol string) bool {
	return a.position != nil && a.position.Symbol == symbol
}

// Deposit credits cash.
func (a *Account) Deposit(amount decimal.Decimal) {
	if amount.IsNegative() {
		panic(fmt.Errorf("%w: negative deposit %s", apperrors.ErrInvariantViolation, amount))
	}
	a.cash = a.cash.Add(amount)
}

// Open debits costBasis from cash and records the position.
func (a *Account) Open(symbol string, qty, costBasis decimal.Decimal, state core.PositionState) {
	if a.position != nil {
		panic(fmt.Errorf("%w: open %s while holding %s", apperrors.ErrInvariantViolation, symbol, a.position.Symbol))
	}
	if costBasis.GreaterThan(a.cash) {
		panic(fmt.Errorf("%w: cost basis %s exceeds cash %s", apperrors.ErrInvariantViolation, costBasis, a.cash))
	}
	a.cash = a.cash.Sub(costBasis)
	a.position = &Position{Symbol: symbol, Quantity: qty, CostBasis: costBasis, State: state}
}

// UpdateState replaces the threaded state of the open position.
func (a *Account) UpdateState(state core.PositionState) {
	if a.position == nil {
		panic(fmt.Errorf("%w: update state while flat", apperrors.ErrInvariantViolation))
	}
	a.position.State = state
}

// Close credits proceeds and returns the closed position.
func (a *Account) Close(proceeds decimal.Decimal) Position {
	if a.position == nil {
		panic(fmt.Errorf("%w: close while flat", apperrors.ErrInvariantViolation))
	}
	closed := *a.position
	a.cash = a.cash.Add(proceeds)
	a.position = nil
	return closed
}

// Equity is cash plus the open position marked at mark. A flat account's
// equity is its cash.
func (a *Account) Equity(mark decimal.Decimal) decimal.Decimal {
	if a.position == nil {
		return a.cash
	}
	return a.cash.Add(a.position.Quantity.Mul(mark))
}
