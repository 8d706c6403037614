package mock

import (
	"time"

	"walkforward/internal/core"

	"github.com/shopspring/decimal"
)

// Epoch is the first day of generated series.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Day returns Epoch + n days.
func Day(n int) time.Time {
	return Epoch.AddDate(0, 0, n)
}

// Bars builds one bar per close on consecutive days starting at start. High
// and low are close +/- 1.
func Bars(symbol string, start time.Time, closes ...float64) []core.Bar {
	out := make([]core.Bar, len(closes))
	for i, c := range closes {
		out[i] = Bar(symbol, start.AddDate(0, 0, i), c)
	}
	return out
}

// Bar builds a single bar with high/low one unit around close.
func Bar(symbol string, at time.Time, close float64) core.Bar {
	c := decimal.NewFromFloat(close)
	one := decimal.NewFromInt(1)
	return core.Bar{
		Symbol: symbol,
		Time:   at,
		Open:   c,
		High:   c.Add(one),
		Low:    c.Sub(one),
		Close:  c,
		Volume: decimal.NewFromInt(1000),
	}
}

// WithFeatures returns a copy of b carrying the given float features.
func WithFeatures(b core.Bar, kv map[string]float64) core.Bar {
	feats := make(map[string]decimal.Decimal, len(b.Features)+len(kv))
	for k, v := range b.Features {
		feats[k] = v
	}
	for k, v := range kv {
		feats[k] = decimal.NewFromFloat(v)
	}
	b.Features = feats
	return b
}

// WithPrevClose attaches prev_close to every bar after the first.
func WithPrevClose(bars []core.Bar) []core.Bar {
	out := make([]core.Bar, len(bars))
	for i, b := range bars {
		if i > 0 {
			b = WithFeatures(b, nil)
			b.Features["prev_close"] = bars[i-1].Close
		}
		out[i] = b
	}
	return out
}

// Wave generates n closes oscillating around base, useful for series that
// cross channel bounds repeatedly.
func Wave(n int, base, amp float64, period int) []float64 {
	out := make([]float64, n)
	for i := range out {
		phase := i % period
		half := period / 2
		var frac float64
		if phase < half {
			frac = float64(phase) / float64(half)
		} else {
			frac = float64(period-phase) / float64(period-half)
		}
		out[i] = base + amp*(2*frac-1)
	}
	return out
}
