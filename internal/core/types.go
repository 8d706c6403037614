package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the signal a strategy emits for one bar.
type Action int

const (
	ActionHold Action = iota
	ActionBuySignal
	ActionSellSignal
)

func (a Action) String() string {
	switch a {
	case ActionBuySignal:
		return "BUY"
	case ActionSellSignal:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Bar is one daily OHLCV row for a symbol. Features are attached by the
// feature pipeline and are read-only afterwards.
type Bar struct {
	Symbol   string
	Time     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Features map[string]decimal.Decimal
}

// Feature returns the named indicator value, if present.
func (b Bar) Feature(name string) (decimal.Decimal, bool) {
	if b.Features == nil {
		return decimal.Zero, false
	}
	v, ok := b.Features[name]
	return v, ok
}

// PositionStateVersion is bumped whenever PositionState gains or changes fields.
const PositionStateVersion = 1

// PositionState is the strategy-owned record threaded through decisions for
// one symbol. The engine stores and forwards it without interpreting it,
// except for seeding it on a BUY fill.
type PositionState struct {
	Version      int             `json:"version"`
	Holding      bool            `json:"holding"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	HighestPrice decimal.Decimal `json:"highest_price"`
	Cooldown     int             `json:"cooldown"`
}

// EmptyState is the state handed to a strategy when the account is flat in a symbol.
func EmptyState() PositionState {
	return PositionState{Version: PositionStateVersion}
}

// HeldState seeds the state of a freshly opened position.
func HeldState(fillPrice decimal.Decimal) PositionState {
	return PositionState{
		Version:      PositionStateVersion,
		Holding:      true,
		EntryPrice:   fillPrice,
		HighestPrice: fillPrice,
	}
}

// IsEmpty reports whether the state carries no position information.
func (s PositionState) IsEmpty() bool {
	return !s.Holding && s.EntryPrice.IsZero() && s.HighestPrice.IsZero() && s.Cooldown == 0
}

// Decision is a strategy's answer for one bar.
type Decision struct {
	Action Action
	// QuantityHint is advisory; zero means the engine sizes the order.
	QuantityHint decimal.Decimal
	State        PositionState
	// Score ranks competing BUY signals on the same tick.
	Score float64
}

// Hold returns a HOLD decision carrying the given state.
func Hold(state PositionState) Decision {
	return Decision{Action: ActionHold, State: state}
}

// SymbolState is the per-symbol record persisted by the live trader between cycles.
type SymbolState struct {
	HighestPrice decimal.Decimal `json:"highest_price"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Cooldown     int             `json:"cooldown"`
}

// AssetClass distinguishes fee and sizing rules.
type AssetClass int

const (
	AssetStock AssetClass = iota
	AssetCrypto
)

func (c AssetClass) String() string {
	if c == AssetCrypto {
		return "crypto"
	}
	return "stock"
}

// OrderSide is the direction of a market order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderRequest is a market order submitted to a broker.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	ClientOrderID string
}

// Order is a broker's acknowledgement of a submitted order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Status        string
	CreatedAt     time.Time
}

// AccountInfo is a broker account snapshot.
type AccountInfo struct {
	Cash        decimal.Decimal
	BuyingPower decimal.Decimal
}

// PositionInfo is a broker position snapshot; zero quantity means flat.
type PositionInfo struct {
	Symbol        string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
}
