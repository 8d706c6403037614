package mock

import (
	"sync"

	"walkforward/internal/core"

	"github.com/shopspring/decimal"
)

// DecideFunc is the signature of core.Strategy.Decide.
type DecideFunc func(bar core.Bar, state core.PositionState, symbol string, equity decimal.Decimal) (core.Decision, error)

// Call records one Decide invocation.
type Call struct {
	Bar    core.Bar
	State  core.PositionState
	Symbol string
	Equity decimal.Decimal
}

// FuncStrategy adapts a function to core.Strategy and records every call.
type FuncStrategy struct {
	Label string
	Fn    DecideFunc

	mu    sync.Mutex
	calls []Call
}

// NewFuncStrategy wraps fn.
func NewFuncStrategy(fn DecideFunc) *FuncStrategy {
	return &FuncStrategy{Label: "func", Fn: fn}
}

func (s *FuncStrategy) Name() string { return s.Label }

func (s *FuncStrategy) Decide(bar core.Bar, state core.PositionState, symbol string, equity decimal.Decimal) (core.Decision, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Bar: bar, State: state, Symbol: symbol, Equity: equity})
	s.mu.Unlock()
	return s.Fn(bar, state, symbol, equity)
}

// Calls returns a copy of the recorded invocations.
func (s *FuncStrategy) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// MomentumStrategy buys when close rises above prev_close and sells when it
// falls below while holding.
func MomentumStrategy() *FuncStrategy {
	return NewFuncStrategy(func(bar core.Bar, state core.PositionState, _ string, _ decimal.Decimal) (core.Decision, error) {
		prev, ok := bar.Feature("prev_close")
		if !ok {
			return core.Hold(state), nil
		}
		if !state.Holding && bar.Close.GreaterThan(prev) {
			return core.Decision{Action: core.ActionBuySignal, State: state, Score: 1}, nil
		}
		if state.Holding && bar.Close.LessThan(prev) {
			return core.Decision{Action: core.ActionSellSignal, State: state}, nil
		}
		return core.Hold(state), nil
	})
}
