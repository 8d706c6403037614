package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"walkforward/internal/core"
)

// Runner polls a Cycle on a fixed interval until its context ends.
type Runner struct {
	cycle    *Cycle
	interval time.Duration
	logger   core.ILogger
	now      func() time.Time

	mu      sync.RWMutex
	cycles  int
	started time.Time
	lastOK  time.Time
	lastErr error
}

func NewRunner(cycle *Cycle, interval time.Duration, logger core.ILogger) *Runner {
	return &Runner{
		cycle:    cycle,
		interval: interval,
		logger:   logger.WithField("component", "live_runner"),
		now:      time.Now,
	}
}

// Run executes a cycle immediately and then once per interval. Cycle errors
// are logged; the loop only stops when ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.started = r.now()
	r.mu.Unlock()

	r.logger.Info("Live trader started", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("Live trader stopped", "cycles", r.Cycles())
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle outside the polling loop.
func (r *Runner) RunOnce(ctx context.Context) error {
	r.runOnce(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Cycles returns the number of cycles executed so far.
func (r *Runner) Cycles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}

// Health fails when the last cycle errored or no cycle has succeeded within
// staleAfter of the previous success (or of start).
func (r *Runner) Health(staleAfter time.Duration) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lastErr != nil {
		return fmt.Errorf("last cycle failed: %w", r.lastErr)
	}
	ref := r.lastOK
	if ref.IsZero() {
		ref = r.started
	}
	if !ref.IsZero() && r.now().Sub(ref) > staleAfter {
		return fmt.Errorf("no successful cycle since %s", ref.UTC().Format(time.RFC3339))
	}
	return nil
}

func (r *Runner) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	r.cycles++
	n := r.cycles
	r.mu.Unlock()

	err := r.cycle.Run(ctx)

	r.mu.Lock()
	r.lastErr = err
	if err == nil {
		r.lastOK = r.now()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Cycle failed", "cycle", n, "error", err)
	}
}
