package walkforward

import (
	"fmt"
	"math"

	"walkforward/internal/core"

	"github.com/shopspring/decimal"
)

// candidate is a BUY signal competing for the single entry slot on a tick.
type candidate struct {
	symbol   string
	bar      core.Bar
	decision core.Decision
}

// picker keeps the strictly highest-scoring BUY. Offers must arrive in
// lexical symbol order so that equal scores resolve to the first symbol.
// A NaN score is not comparable and never wins.
type picker struct {
	best *candidate
}

func (p *picker) offer(c candidate) {
	if c.decision.Action != core.ActionBuySignal || math.IsNaN(c.decision.Score) {
		return
	}
	if p.best == nil || c.decision.Score > p.best.decision.Score {
		p.best = &c
	}
}

func (p *picker) pick() (candidate, bool) {
	if p.best == nil {
		return candidate{}, false
	}
	return *p.best, true
}

// decide calls the strategy and tags failures with where they happened.
func decide(s core.Strategy, bar core.Bar, state core.PositionState, symbol string, equity decimal.Decimal) (core.Decision, error) {
	dec, err := s.Decide(bar, state, symbol, equity)
	if err != nil {
		return core.Decision{}, fmt.Errorf("strategy %s on %s at %s: %w", s.Name(), symbol, bar.Time.Format("2006-01-02"), err)
	}
	return dec, nil
}
