package walkforward

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"walkforward/internal/core"
)

// Period is a window counted in days back from now. EndDaysAgo is zero for
// windows that run up to today.
type Period struct {
	StartDaysAgo int
	EndDaysAgo   int
}

// Label renders the period as "start-end".
func (p Period) Label() string {
	return fmt.Sprintf("%d-%d", p.StartDaysAgo, p.EndDaysAgo)
}

// Window returns the inclusive time range of the period relative to now.
func (p Period) Window(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -p.StartDaysAgo), now.AddDate(0, 0, -p.EndDaysAgo)
}

// ParsePeriods parses a comma-separated list of "N" or "A-B" day windows and
// returns them along with the deepest lookback needed to cover all of them.
func ParsePeriods(input string) ([]Period, int, error) {
	var periods []Period
	maxLookback := 0

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var p Period
		if a, b, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(a))
			end, err2 := strconv.Atoi(strings.TrimSpace(b))
			if err1 != nil || err2 != nil || start < 0 || end < 0 {
				return nil, 0, fmt.Errorf("invalid period %q", part)
			}
			p = Period{StartDaysAgo: max(start, end), EndDaysAgo: min(start, end)}
		} else {
			days, err := strconv.Atoi(part)
			if err != nil || days < 0 {
				return nil, 0, fmt.Errorf("invalid period %q", part)
			}
			p = Period{StartDaysAgo: days}
		}

		if p.StartDaysAgo == p.EndDaysAgo {
			return nil, 0, fmt.Errorf("empty period %q", part)
		}
		periods = append(periods, p)
		maxLookback = max(maxLookback, p.StartDaysAgo)
	}

	if len(periods) == 0 {
		return nil, 0, fmt.Errorf("no periods in %q", input)
	}
	return periods, maxLookback, nil
}

// SliceUniverse keeps the bars inside [from, to] for every symbol and drops
// symbols left empty.
func SliceUniverse(cache map[string][]core.Bar, from, to time.Time) map[string][]core.Bar {
	out := make(map[string][]core.Bar, len(cache))
	for sym, bars := range cache {
		var kept []core.Bar
		for _, b := range bars {
			if b.Time.Before(from) || b.Time.After(to) {
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) > 0 {
			out[sym] = kept
		}
	}
	return out
}
