package portfolio

import (
	"errors"
	"testing"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func n(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func recoverErr(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	f()
	return nil
}

func TestAccount_OpenClose(t *testing.T) {
	acc := NewAccount(n(1000))
	assert.True(t, acc.IsFlat())

	acc.Open("AAPL", n(100), n(1000), core.HeldState(n(10)))
	assert.True(t, acc.Cash().IsZero())
	assert.True(t, acc.Holds("AAPL"))
	assert.True(t, acc.Equity(n(12)).Equal(n(1200)))

	pos := acc.Close(n(1200))
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.True(t, pos.CostBasis.Equal(n(1000)))
	assert.True(t, acc.IsFlat())
	assert.True(t, acc.Cash().Equal(n(1200)))
	assert.True(t, acc.Equity(n(99)).Equal(n(1200)))
}

func TestAccount_SecondPositionPanics(t *testing.T) {
	acc := NewAccount(n(1000))
	acc.Open("AAPL", n(10), n(500), core.EmptyState())

	err := recoverErr(func() {
		acc.Open("MSFT", n(1), n(100), core.EmptyState())
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvariantViolation))
}

func TestAccount_GuardRails(t *testing.T) {
	tests := []struct {
		name string
		fn   func(a *Account)
	}{
		{"cost above cash", func(a *Account) { a.Open("X", n(1), n(2000), core.EmptyState()) }},
		{"close while flat", func(a *Account) { a.Close(n(1)) }},
		{"update while flat", func(a *Account) { a.UpdateState(core.EmptyState()) }},
		{"negative deposit", func(a *Account) { a.Deposit(n(-1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccount(n(1000))
			err := recoverErr(func() { tt.fn(acc) })
			assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)
		})
	}
}

func TestAccount_UpdateState(t *testing.T) {
	acc := NewAccount(n(100))
	acc.Open("BTC/USD", n(1), n(100), core.HeldState(n(100)))

	next := core.HeldState(n(100))
	next.HighestPrice = n(130)
	acc.UpdateState(next)

	pos, ok := acc.Position()
	require.True(t, ok)
	assert.True(t, pos.State.HighestPrice.Equal(n(130)))
}
