// Package risk pauses live entries after a run of losing trades
package risk

import (
	"sync"
	"time"

	"walkforward/pkg/telemetry"

	"github.com/shopspring/decimal"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

func (s CircuitState) String() string {
	if s == CircuitOpen {
		return "open"
	}
	return "closed"
}

type CircuitConfig struct {
	// MaxConsecutiveLosses trips the breaker; 0 disables it.
	MaxConsecutiveLosses int
	// MaxDrawdownAmount trips on cumulative realized loss; zero disables it.
	MaxDrawdownAmount decimal.Decimal
	// CooldownPeriod auto-resets an open breaker; zero keeps it open until Reset.
	CooldownPeriod time.Duration
}

// Status is a point-in-time view of the breaker
type Status struct {
	State             CircuitState
	ConsecutiveLosses int
	TotalPnL          decimal.Decimal
	OpenedAt          time.Time
	Reason            string
}

type CircuitBreaker struct {
	mu                sync.RWMutex
	state             CircuitState
	config            CircuitConfig
	consecutiveLosses int
	totalPnL          decimal.Decimal
	lastTripped       time.Time
	reason            string
	now               func() time.Time
}

func NewCircuitBreaker(config CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:  CircuitClosed,
		config: config,
		now:    time.Now,
	}
}

// RecordTrade feeds the realized PnL of a closed position
func (cb *CircuitBreaker) RecordTrade(pnl decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if pnl.IsNegative() {
		cb.consecutiveLosses++
	} else {
		cb.consecutiveLosses = 0
	}
	cb.totalPnL = cb.totalPnL.Add(pnl)

	cb.checkThresholds()
}

func (cb *CircuitBreaker) checkThresholds() {
	if cb.state == CircuitOpen {
		return
	}

	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		cb.trip("max consecutive losses reached")
		return
	}

	if cb.config.MaxDrawdownAmount.IsPositive() && cb.totalPnL.LessThan(cb.config.MaxDrawdownAmount.Neg()) {
		cb.trip("max drawdown amount reached")
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.state = CircuitOpen
	cb.lastTripped = cb.now()
	cb.reason = reason
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(true)
}

// IsTripped reports whether new entries are blocked
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return false
	}
	if cb.config.CooldownPeriod > 0 && cb.now().Sub(cb.lastTripped) > cb.config.CooldownPeriod {
		cb.resetLocked()
		return false
	}
	return true
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.resetLocked()
}

func (cb *CircuitBreaker) resetLocked() {
	cb.state = CircuitClosed
	cb.consecutiveLosses = 0
	cb.totalPnL = decimal.Zero
	cb.reason = ""
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(false)
}

func (cb *CircuitBreaker) Status() Status {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Status{
		State:             cb.state,
		ConsecutiveLosses: cb.consecutiveLosses,
		TotalPnL:          cb.totalPnL,
		OpenedAt:          cb.lastTripped,
		Reason:            cb.reason,
	}
}
