package tradingutils

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantityDown truncates a quantity so an order never exceeds the allocation
func RoundQuantityDown(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.RoundFloor(int32(qtyDecimals))
}

// ApplySlippage moves a reference price against the taker: up for buys, down for sells
func ApplySlippage(price, slippage decimal.Decimal, buy bool) decimal.Decimal {
	if buy {
		return price.Mul(decimal.NewFromInt(1).Add(slippage))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(slippage))
}

// ROIPercent returns (final - invested) / invested * 100, or zero when nothing was invested
func ROIPercent(invested, final decimal.Decimal) decimal.Decimal {
	if invested.IsZero() {
		return decimal.Zero
	}
	return final.Sub(invested).Div(invested).Mul(hundred)
}

// MaxDrawdownPercent returns the largest peak-to-trough decline of a value curve in percent
func MaxDrawdownPercent(curve []decimal.Decimal) decimal.Decimal {
	maxDD := decimal.Zero
	peak := decimal.Zero
	for _, v := range curve {
		if v.GreaterThan(peak) {
			peak = v
		}
		if peak.IsPositive() {
			dd := peak.Sub(v).Div(peak).Mul(hundred)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}
