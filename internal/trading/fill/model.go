// Package fill prices simulated and live market orders: slippage, sizing and fees.
package fill

import (
	"strings"

	"walkforward/internal/core"
	"walkforward/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

var (
	DefaultSlippage      = decimal.RequireFromString("0.0003")
	DefaultCryptoFeeRate = decimal.RequireFromString("0.0025")
	DefaultCryptoBuffer  = decimal.RequireFromString("0.98")
	DefaultStockBuffer   = decimal.RequireFromString("0.99")
)

const DefaultQtyDecimals = 4

// Classifier decides the asset class of a symbol.
type Classifier struct {
	crypto map[string]struct{}
}

// NewClassifier treats the listed symbols, and anything quoted as BASE/QUOTE, as crypto.
func NewClassifier(cryptoSymbols []string) Classifier {
	c := Classifier{crypto: make(map[string]struct{}, len(cryptoSymbols))}
	for _, s := range cryptoSymbols {
		c.crypto[strings.ToUpper(s)] = struct{}{}
	}
	return c
}

// Class returns the asset class of symbol.
func (c Classifier) Class(symbol string) core.AssetClass {
	if strings.Contains(symbol, "/") {
		return core.AssetCrypto
	}
	if _, ok := c.crypto[strings.ToUpper(symbol)]; ok {
		return core.AssetCrypto
	}
	return core.AssetStock
}

// Model holds the execution cost parameters.
type Model struct {
	Slippage      decimal.Decimal
	CryptoFeeRate decimal.Decimal
	StockFeeRate  decimal.Decimal
	// ApplyFees deducts Fee from cash after each simulated fill. Off by default
	// so that fees stay informational.
	ApplyFees    bool
	CryptoBuffer decimal.Decimal
	StockBuffer  decimal.Decimal
	QtyDecimals  int
	Classifier   Classifier
}

// DefaultModel returns the standard cost parameters.
func DefaultModel() Model {
	return Model{
		Slippage:      DefaultSlippage,
		CryptoFeeRate: DefaultCryptoFeeRate,
		StockFeeRate:  decimal.Zero,
		CryptoBuffer:  DefaultCryptoBuffer,
		StockBuffer:   DefaultStockBuffer,
		QtyDecimals:   DefaultQtyDecimals,
		Classifier:    NewClassifier(nil),
	}
}

// BuyPrice is the simulated fill price of a market buy at close.
func (m Model) BuyPrice(close decimal.Decimal) decimal.Decimal {
	return tradingutils.ApplySlippage(close, m.Slippage, true)
}

// SellPrice is the simulated fill price of a market sell at close.
func (m Model) SellPrice(close decimal.Decimal) decimal.Decimal {
	return tradingutils.ApplySlippage(close, m.Slippage, false)
}

// AllInQuantity is the fractional quantity that spends exactly cash at price.
func (m Model) AllInQuantity(cash, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return cash.Div(price)
}

// LiveQuantity sizes a live order, truncated to the broker's quantity precision.
func (m Model) LiveQuantity(alloc, price decimal.Decimal) decimal.Decimal {
	return tradingutils.RoundQuantityDown(m.AllInQuantity(alloc, price), m.QtyDecimals)
}

// Fee is the commission on a notional amount for the asset class.
func (m Model) Fee(class core.AssetClass, notional decimal.Decimal) decimal.Decimal {
	if class == core.AssetCrypto {
		return notional.Mul(m.CryptoFeeRate)
	}
	return notional.Mul(m.StockFeeRate)
}

// FeeFor is Fee for the class of symbol.
func (m Model) FeeFor(symbol string, notional decimal.Decimal) decimal.Decimal {
	return m.Fee(m.Classifier.Class(symbol), notional)
}

// Buffer is the fraction of buying power a live entry may commit.
func (m Model) Buffer(class core.AssetClass) decimal.Decimal {
	if class == core.AssetCrypto {
		return m.CryptoBuffer
	}
	return m.StockBuffer
}
