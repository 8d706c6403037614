package paper

import (
	"context"
	"testing"

	"walkforward/internal/core"
	"walkforward/internal/marketdata"
	"walkforward/internal/mock"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBroker_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(d("1000"), nil, &mock.NoopLogger{})
	b.SetQuote("SPY", d("100"))

	order, err := b.SubmitMarketOrder(ctx, core.OrderRequest{Symbol: "SPY", Side: core.SideBuy, Quantity: d("4"), ClientOrderID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", order.ClientOrderID)
	assert.NotEmpty(t, order.ID)
	assert.True(t, order.Price.Equal(d("100")))

	b.SetQuote("SPY", d("150"))
	_, err = b.SubmitMarketOrder(ctx, core.OrderRequest{Symbol: "SPY", Side: core.SideBuy, Quantity: d("2")})
	require.NoError(t, err)

	pos, err := b.Position(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(d("6")))
	// (400 + 300) / 6
	assert.Equal(t, "116.67", pos.AvgEntryPrice.StringFixed(2))

	acct, err := b.Account(ctx)
	require.NoError(t, err)
	assert.True(t, acct.Cash.Equal(d("300")))
	assert.True(t, acct.BuyingPower.Equal(acct.Cash))

	_, err = b.SubmitMarketOrder(ctx, core.OrderRequest{Symbol: "SPY", Side: core.SideSell, Quantity: d("6")})
	require.NoError(t, err)

	pos, err = b.Position(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.IsZero())

	acct, _ = b.Account(ctx)
	assert.True(t, acct.Cash.Equal(d("1200")))
	assert.Len(t, b.Orders(), 3)
}

func TestBroker_Rejections(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(d("100"), nil, &mock.NoopLogger{})
	b.SetQuote("SPY", d("50"))

	tests := []struct {
		name string
		req  core.OrderRequest
		want error
	}{
		{"insufficient cash", core.OrderRequest{Symbol: "SPY", Side: core.SideBuy, Quantity: d("3")}, apperrors.ErrInsufficientFunds},
		{"sell without position", core.OrderRequest{Symbol: "SPY", Side: core.SideSell, Quantity: d("1")}, apperrors.ErrInvalidOrderParameter},
		{"zero quantity", core.OrderRequest{Symbol: "SPY", Side: core.SideBuy, Quantity: decimal.Zero}, apperrors.ErrInvalidOrderParameter},
		{"unknown side", core.OrderRequest{Symbol: "SPY", Side: "HOLD", Quantity: d("1")}, apperrors.ErrInvalidOrderParameter},
		{"no quote", core.OrderRequest{Symbol: "QQQ", Side: core.SideBuy, Quantity: d("1")}, apperrors.ErrInvalidSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.SubmitMarketOrder(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	acct, _ := b.Account(ctx)
	assert.True(t, acct.Cash.Equal(d("100")), "rejected orders leave cash untouched")
}

func TestBroker_QuoteSource(t *testing.T) {
	ctx := context.Background()
	quotes := marketdata.NewStaticFetcher(map[string][]core.Bar{
		"AAA": mock.Bars("AAA", mock.Epoch, 10, 20),
	})
	b := NewBroker(d("100"), quotes, &mock.NoopLogger{})

	order, err := b.SubmitMarketOrder(ctx, core.OrderRequest{Symbol: "AAA", Side: core.SideBuy, Quantity: d("2.5")})
	require.NoError(t, err)
	assert.True(t, order.Price.Equal(d("20")))

	acct, _ := b.Account(ctx)
	assert.True(t, acct.Cash.Equal(d("50")))
}
