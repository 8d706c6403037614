// Package ledger records every cash movement of a simulation run.
package ledger

import (
	"fmt"
	"time"

	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
)

// Kind tags a ledger entry.
type Kind string

const (
	KindDeposit       Kind = "DEPOSIT"
	KindBuy           Kind = "BUY"
	KindSell          Kind = "SELL"
	KindTotalInvested Kind = "TOTAL_INVESTED"
)

// CashSymbol is the symbol recorded on deposits.
const CashSymbol = "CASH"

// Entry is one immutable ledger record. For DEPOSIT, Price holds the deposit
// amount. PnL is non-zero only on SELL. Amount is set only on TOTAL_INVESTED.
type Entry struct {
	Kind     Kind            `json:"kind"`
	Time     time.Time       `json:"time"`
	Symbol   string          `json:"symbol,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Fee      decimal.Decimal `json:"fee"`
	PnL      decimal.Decimal `json:"pnl"`
	Balance  decimal.Decimal `json:"balance"`
	Amount   decimal.Decimal `json:"amount"`
}

// IsTrade reports whether the entry is a BUY or SELL.
func (e Entry) IsTrade() bool {
	return e.Kind == KindBuy || e.Kind == KindSell
}

// Ledger is an append-only record owned by a single run.
type Ledger struct {
	entries []Entry
	closed  bool
	popped  bool
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) append(e Entry) {
	if l.closed {
		panic(fmt.Errorf("%w: append %s after ledger close", apperrors.ErrInvariantViolation, e.Kind))
	}
	l.entries = append(l.entries, e)
}

// AppendDeposit records a capital injection. balance is the account value
// after the deposit.
func (l *Ledger) AppendDeposit(at time.Time, amount, balance decimal.Decimal) {
	l.append(Entry{Kind: KindDeposit, Time: at, Symbol: CashSymbol, Price: amount, Balance: balance})
}

// AppendBuy records an opening fill. balance is cash after the fill.
func (l *Ledger) AppendBuy(at time.Time, symbol string, price, qty, fee, balance decimal.Decimal) {
	l.append(Entry{Kind: KindBuy, Time: at, Symbol: symbol, Price: price, Quantity: qty, Fee: fee, Balance: balance})
}

// AppendSell records a closing fill with its realized pnl. balance is cash after the fill.
func (l *Ledger) AppendSell(at time.Time, symbol string, price, qty, fee, pnl, balance decimal.Decimal) {
	l.append(Entry{Kind: KindSell, Time: at, Symbol: symbol, Price: price, Quantity: qty, Fee: fee, PnL: pnl, Balance: balance})
}

// Close appends the terminal TOTAL_INVESTED record and seals the ledger.
func (l *Ledger) Close(at time.Time, totalInvested decimal.Decimal) {
	l.append(Entry{Kind: KindTotalInvested, Time: at, Amount: totalInvested})
	l.closed = true
}

// Closed reports whether the terminal record has been written.
func (l *Ledger) Closed() bool {
	return l.closed
}

// Len is the number of entries, including the terminal record.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of all records in append order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Records returns a copy of every record except the terminal one.
func (l *Ledger) Records() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Kind != KindTotalInvested {
			out = append(out, e)
		}
	}
	return out
}

// Trades returns only BUY and SELL records.
func (l *Ledger) Trades() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.IsTrade() {
			out = append(out, e)
		}
	}
	return out
}

// TotalInvested returns the terminal amount if the ledger is closed.
func (l *Ledger) TotalInvested() (decimal.Decimal, bool) {
	if !l.closed {
		return decimal.Zero, false
	}
	return l.entries[len(l.entries)-1].Amount, true
}

// PopTotalInvested hands the terminal amount to exactly one consumer.
func (l *Ledger) PopTotalInvested() (decimal.Decimal, bool) {
	if l.popped {
		return decimal.Zero, false
	}
	v, ok := l.TotalInvested()
	if ok {
		l.popped = true
	}
	return v, ok
}
