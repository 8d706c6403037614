package deposit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func TestSchedule_DailySeries(t *testing.T) {
	s := NewSchedule(decimal.NewFromInt(100), 30, day0)

	var fired []int
	for i := 0; i < 100; i++ {
		if _, ok := s.Fire(day(i)); ok {
			fired = append(fired, i)
		}
	}

	assert.Equal(t, []int{30, 60, 90}, fired)
	count := 0
	for _, f := range fired {
		if f <= 95 {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestSchedule_GapKeepsCadence(t *testing.T) {
	s := NewSchedule(decimal.NewFromInt(50), 30, day0)

	ticks := []int{10, 75, 80, 95}
	var fired []int
	for _, i := range ticks {
		if amt, ok := s.Fire(day(i)); ok {
			assert.True(t, amt.Equal(decimal.NewFromInt(50)))
			fired = append(fired, i)
		}
	}

	// day 75 pays the day-30 deposit only; the next is due day 60, not day 105
	assert.Equal(t, []int{75, 80, 95}, fired)
	assert.Equal(t, day(120), s.NextDue())
}

func TestSchedule_AtMostOncePerTick(t *testing.T) {
	s := NewSchedule(decimal.NewFromInt(10), 1, day0)
	_, first := s.Fire(day(5))
	_, second := s.Fire(day(5))
	assert.True(t, first)
	assert.False(t, second)
}

func TestSchedule_Disabled(t *testing.T) {
	tests := []struct {
		name     string
		amount   decimal.Decimal
		interval int
	}{
		{"zero amount", decimal.Zero, 30},
		{"zero interval", decimal.NewFromInt(100), 0},
		{"negative amount", decimal.NewFromInt(-5), 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSchedule(tt.amount, tt.interval, day0)
			assert.False(t, s.Enabled())
			assert.False(t, s.Due(day(1000)))
		})
	}
}
