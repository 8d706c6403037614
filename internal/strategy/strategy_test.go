package strategy

import (
	"errors"
	"testing"

	"walkforward/internal/core"
	"walkforward/internal/features"
	"walkforward/internal/mock"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func bar(close float64, feats map[string]float64) core.Bar {
	return mock.WithFeatures(mock.Bar("AAPL", mock.Day(0), close), feats)
}

func channel(close, high, low float64) core.Bar {
	return bar(close, map[string]float64{features.DonchianHigh: high, features.DonchianLow: low})
}

func TestDonchian(t *testing.T) {
	s := Donchian{}
	held := core.HeldState(d(100))

	tests := []struct {
		name   string
		bar    core.Bar
		state  core.PositionState
		action core.Action
	}{
		{"breakout from flat", channel(105, 104, 90), core.EmptyState(), core.ActionBuySignal},
		{"inside channel flat", channel(100, 104, 90), core.EmptyState(), core.ActionHold},
		{"breakdown while holding", channel(89, 104, 90), held, core.ActionSellSignal},
		{"breakout while holding", channel(105, 104, 90), held, core.ActionHold},
		{"breakdown while flat", channel(89, 104, 90), core.EmptyState(), core.ActionHold},
		{"missing features", bar(200, nil), core.EmptyState(), core.ActionHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := s.Decide(tt.bar, tt.state, "AAPL", d(1000))
			require.NoError(t, err)
			assert.Equal(t, tt.action, dec.Action)
			assert.Equal(t, tt.state.Holding, dec.State.Holding)
		})
	}
}

func TestDonchian_BuyScoreAndEntry(t *testing.T) {
	dec, err := Donchian{}.Decide(channel(105, 104, 90), core.EmptyState(), "AAPL", d(1000))
	require.NoError(t, err)
	assert.Equal(t, 1.0, dec.Score)
	assert.True(t, dec.State.EntryPrice.Equal(d(105)))
}

func TestDonchianTrailing(t *testing.T) {
	s := DonchianTrailing{TrailPct: d(0.08)}

	t.Run("ratchets highest price", func(t *testing.T) {
		dec, err := s.Decide(channel(120, 130, 90), core.HeldState(d(100)), "AAPL", d(1000))
		require.NoError(t, err)
		assert.Equal(t, core.ActionHold, dec.Action)
		assert.True(t, dec.State.HighestPrice.Equal(d(120)))
	})

	t.Run("trailing stop", func(t *testing.T) {
		state := core.HeldState(d(100))
		state.HighestPrice = d(120)
		dec, err := s.Decide(channel(110, 130, 90), state, "AAPL", d(1000))
		require.NoError(t, err)
		assert.Equal(t, core.ActionSellSignal, dec.Action)
	})

	t.Run("cooldown blocks entry", func(t *testing.T) {
		state := core.EmptyState()
		state.Cooldown = 2
		dec, err := s.Decide(channel(150, 104, 90), state, "AAPL", d(1000))
		require.NoError(t, err)
		assert.Equal(t, core.ActionHold, dec.Action)
		assert.Equal(t, 2, dec.State.Cooldown)
	})

	t.Run("score grows with breakout strength", func(t *testing.T) {
		weak, _ := s.Decide(channel(101, 100, 90), core.EmptyState(), "A", d(1000))
		strong, _ := s.Decide(channel(110, 100, 90), core.EmptyState(), "B", d(1000))
		assert.Equal(t, core.ActionBuySignal, weak.Action)
		assert.Greater(t, strong.Score, weak.Score)
	})
}

func TestSMATrend(t *testing.T) {
	s := SMATrend{}
	mk := func(close, sma, prev float64) core.Bar {
		return bar(close, map[string]float64{features.SMA50: sma, features.PrevClose: prev})
	}

	dec, err := s.Decide(mk(110, 100, 105), core.EmptyState(), "SPY", d(1000))
	require.NoError(t, err)
	assert.Equal(t, core.ActionBuySignal, dec.Action)
	assert.InDelta(t, 0.1, dec.Score, 1e-9)

	dec, _ = s.Decide(mk(110, 100, 115), core.EmptyState(), "SPY", d(1000))
	assert.Equal(t, core.ActionHold, dec.Action)

	dec, _ = s.Decide(mk(95, 100, 99), core.HeldState(d(105)), "SPY", d(1000))
	assert.Equal(t, core.ActionSellSignal, dec.Action)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{"1", IDDonchian},
		{"2", IDDonchianTrailing},
		{" 3 ", IDSMATrend},
		{"DONCHIAN", IDDonchian},
		{"sma_trend", IDSMATrend},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := ParseID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	for _, bad := range []string{"", "4", "strategy1", "donchian-trailing"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, apperrors.ErrStrategyNotFound, "input %q", bad)
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf))
	}
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry(DefaultParams())
	for _, id := range r.IDs() {
		s, err := r.Select(string(id))
		require.NoError(t, err)
		assert.Equal(t, string(id), s.Name())
	}
}

func TestActive_SwitchKeepsPreviousOnError(t *testing.T) {
	a, err := NewActive(NewRegistry(DefaultParams()), "1")
	require.NoError(t, err)
	assert.Equal(t, "donchian", a.Name())

	require.Error(t, a.Switch("nope"))
	assert.Equal(t, "donchian", a.Name())

	require.NoError(t, a.Switch("sma_trend"))
	assert.Equal(t, "sma_trend", a.Name())
}
