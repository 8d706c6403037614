// Package features attaches the indicator columns strategies read.
package features

import (
	"sort"

	"walkforward/internal/core"

	"github.com/shopspring/decimal"
)

// Feature names written by the pipeline.
const (
	DonchianHigh = "donchian_high"
	DonchianLow  = "donchian_low"
	SMA50        = "sma_50"
	PrevClose    = "prev_close"
)

// Pipeline computes channel and trend indicators. Channel bounds use only
// bars strictly before the row so a decision at T never sees T's high or low.
type Pipeline struct {
	HighPeriod int
	LowPeriod  int
	SMAPeriod  int
}

// NewPipeline returns the standard 20/10/50 pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{HighPeriod: 20, LowPeriod: 10, SMAPeriod: 50}
}

// Warmup is the number of leading rows without a complete feature set.
func (p *Pipeline) Warmup() int {
	w := 1
	if p.HighPeriod > w {
		w = p.HighPeriod
	}
	if p.LowPeriod > w {
		w = p.LowPeriod
	}
	if p.SMAPeriod-1 > w {
		w = p.SMAPeriod - 1
	}
	return w
}

// IsAnnotated reports whether every bar already carries the trend column.
func IsAnnotated(bars []core.Bar) bool {
	if len(bars) == 0 {
		return false
	}
	for _, b := range bars {
		if _, ok := b.Feature(SMA50); !ok {
			return false
		}
	}
	return true
}

// Annotate sorts bars by time, attaches features and drops warm-up rows.
// Already annotated input is returned unchanged (as a copy).
func (p *Pipeline) Annotate(bars []core.Bar) []core.Bar {
	sorted := make([]core.Bar, len(bars))
	copy(sorted, bars)
	if IsAnnotated(sorted) {
		return sorted
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	warmup := p.Warmup()
	if len(sorted) <= warmup {
		return nil
	}

	out := make([]core.Bar, 0, len(sorted)-warmup)
	for i := warmup; i < len(sorted); i++ {
		b := sorted[i]
		feats := make(map[string]decimal.Decimal, len(b.Features)+4)
		for k, v := range b.Features {
			feats[k] = v
		}
		feats[DonchianHigh] = highest(sorted[i-p.HighPeriod : i])
		feats[DonchianLow] = lowest(sorted[i-p.LowPeriod : i])
		feats[SMA50] = meanClose(sorted[i-p.SMAPeriod+1 : i+1])
		feats[PrevClose] = sorted[i-1].Close
		b.Features = feats
		out = append(out, b)
	}
	return out
}

func highest(window []core.Bar) decimal.Decimal {
	m := window[0].High
	for _, b := range window[1:] {
		if b.High.GreaterThan(m) {
			m = b.High
		}
	}
	return m
}

func lowest(window []core.Bar) decimal.Decimal {
	m := window[0].Low
	for _, b := range window[1:] {
		if b.Low.LessThan(m) {
			m = b.Low
		}
	}
	return m
}

func meanClose(window []core.Bar) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(window))))
}
