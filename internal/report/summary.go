package report

import (
	"walkforward/internal/trading/ledger"
	"walkforward/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Summary holds trade statistics for one run. Only SELL records count as
// closed trades; DEPOSIT and TOTAL_INVESTED records are ignored.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	WinRate      decimal.Decimal
	GrossProfit  decimal.Decimal
	GrossLoss    decimal.Decimal
	ProfitFactor decimal.Decimal
	MaxDrawdown  decimal.Decimal

	// InfiniteProfitFactor is set when there are wins and no losses.
	InfiniteProfitFactor bool
}

// Summarize computes statistics over records. The drawdown is measured on the
// balance of DEPOSIT and SELL records; a BUY balance is the leftover cash and
// does not mark equity.
func Summarize(records []ledger.Entry) Summary {
	var s Summary
	curve := make([]decimal.Decimal, 0, len(records))
	for _, e := range records {
		if e.Kind == ledger.KindDeposit {
			curve = append(curve, e.Balance)
		}
		if e.Kind != ledger.KindSell {
			continue
		}
		curve = append(curve, e.Balance)
		s.Trades++
		switch {
		case e.PnL.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(e.PnL)
		case e.PnL.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(e.PnL.Abs())
		}
	}

	if s.Trades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(s.Trades))).
			Mul(decimal.NewFromInt(100))
	}
	switch {
	case s.GrossLoss.IsPositive():
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss)
	case s.GrossProfit.IsPositive():
		s.InfiniteProfitFactor = true
	}
	s.MaxDrawdown = tradingutils.MaxDrawdownPercent(curve)
	return s
}

func (s Summary) profitFactorString() string {
	if s.InfiniteProfitFactor {
		return "inf"
	}
	return s.ProfitFactor.StringFixed(2)
}
