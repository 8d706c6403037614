// Package deposit implements the recurring capital injection schedule.
package deposit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Schedule fires a fixed deposit every Interval days. The first deposit is due
// one interval after the first tick; each fire advances the due date by one
// interval from the previous due date, so a gap in ticks yields at most one
// deposit and the cadence is never reset to the late tick.
type Schedule struct {
	amount   decimal.Decimal
	interval int
	nextDue  time.Time
}

// NewSchedule returns a schedule anchored at firstTick. It is disabled when
// amount is not positive or intervalDays < 1.
func NewSchedule(amount decimal.Decimal, intervalDays int, firstTick time.Time) *Schedule {
	s := &Schedule{amount: amount, interval: intervalDays}
	if s.Enabled() {
		s.nextDue = firstTick.AddDate(0, 0, intervalDays)
	}
	return s
}

// Enabled reports whether the schedule ever fires.
func (s *Schedule) Enabled() bool {
	return s.amount.IsPositive() && s.interval > 0
}

// NextDue is the earliest tick at which the next deposit fires.
func (s *Schedule) NextDue() time.Time {
	return s.nextDue
}

// Amount is the size of each deposit.
func (s *Schedule) Amount() decimal.Decimal {
	return s.amount
}

// Due reports whether a deposit fires at tick.
func (s *Schedule) Due(tick time.Time) bool {
	return s.Enabled() && !tick.Before(s.nextDue)
}

// Fire returns the deposit amount and advances the schedule when due.
func (s *Schedule) Fire(tick time.Time) (decimal.Decimal, bool) {
	if !s.Due(tick) {
		return decimal.Zero, false
	}
	s.nextDue = s.nextDue.AddDate(0, 0, s.interval)
	return s.amount, true
}
