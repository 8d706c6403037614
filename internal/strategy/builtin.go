package strategy

import (
	"walkforward/internal/core"
	"walkforward/internal/features"

	"github.com/shopspring/decimal"
)

// Donchian buys a close above the prior 20-bar high and exits on a close
// below the prior 10-bar low.
type Donchian struct{}

func (Donchian) Name() string { return string(IDDonchian) }

func (Donchian) Decide(bar core.Bar, state core.PositionState, _ string, _ decimal.Decimal) (core.Decision, error) {
	high, okHigh := bar.Feature(features.DonchianHigh)
	low, okLow := bar.Feature(features.DonchianLow)
	if !okHigh || !okLow {
		return core.Hold(state), nil
	}

	if !state.Holding && bar.Close.GreaterThan(high) {
		state.EntryPrice = bar.Close
		return core.Decision{Action: core.ActionBuySignal, State: state, Score: 1.0}, nil
	}
	if state.Holding && bar.Close.LessThan(low) {
		return core.Decision{Action: core.ActionSellSignal, State: state}, nil
	}
	return core.Hold(state), nil
}

// DonchianTrailing enters like Donchian, scores by breakout strength and
// exits on the channel low or a trailing stop under the highest close seen.
type DonchianTrailing struct {
	TrailPct decimal.Decimal
}

func (DonchianTrailing) Name() string { return string(IDDonchianTrailing) }

func (s DonchianTrailing) Decide(bar core.Bar, state core.PositionState, _ string, _ decimal.Decimal) (core.Decision, error) {
	high, okHigh := bar.Feature(features.DonchianHigh)
	low, okLow := bar.Feature(features.DonchianLow)
	if !okHigh || !okLow {
		return core.Hold(state), nil
	}

	if state.Holding {
		if bar.Close.GreaterThan(state.HighestPrice) {
			state.HighestPrice = bar.Close
		}
		stop := state.HighestPrice.Mul(decimal.NewFromInt(1).Sub(s.TrailPct))
		if bar.Close.LessThan(stop) || bar.Close.LessThan(low) {
			return core.Decision{Action: core.ActionSellSignal, State: state}, nil
		}
		return core.Hold(state), nil
	}

	if state.Cooldown > 0 {
		return core.Hold(state), nil
	}
	if bar.Close.GreaterThan(high) && high.IsPositive() {
		strength, _ := bar.Close.Sub(high).Div(high).Float64()
		state.EntryPrice = bar.Close
		state.HighestPrice = bar.Close
		return core.Decision{Action: core.ActionBuySignal, State: state, Score: strength}, nil
	}
	return core.Hold(state), nil
}

// SMATrend buys rising closes above the 50-day average and exits when the
// close drops back below it.
type SMATrend struct{}

func (SMATrend) Name() string { return string(IDSMATrend) }

func (SMATrend) Decide(bar core.Bar, state core.PositionState, _ string, _ decimal.Decimal) (core.Decision, error) {
	sma, ok := bar.Feature(features.SMA50)
	if !ok || !sma.IsPositive() {
		return core.Hold(state), nil
	}

	if state.Holding {
		if bar.Close.LessThan(sma) {
			return core.Decision{Action: core.ActionSellSignal, State: state}, nil
		}
		return core.Hold(state), nil
	}

	prev, ok := bar.Feature(features.PrevClose)
	if !ok {
		return core.Hold(state), nil
	}
	if bar.Close.GreaterThan(sma) && bar.Close.GreaterThan(prev) {
		distance, _ := bar.Close.Sub(sma).Div(sma).Float64()
		state.EntryPrice = bar.Close
		return core.Decision{Action: core.ActionBuySignal, State: state, Score: distance}, nil
	}
	return core.Hold(state), nil
}
