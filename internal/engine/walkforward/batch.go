package walkforward

import (
	"context"
	"fmt"
	"time"

	"walkforward/internal/core"
	"walkforward/pkg/concurrency"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is one finished period handed to a ResultSink.
type Outcome struct {
	RunID    string
	Strategy string
	Universe string
	Period   Period
	Result   *Result
}

// ResultSink persists finished runs.
type ResultSink interface {
	Write(ctx context.Context, o Outcome) error
}

// Batch runs several periods over one cached, feature-complete universe.
type Batch struct {
	engine *Engine
	pool   *concurrency.WorkerPool
	sink   ResultSink
	logger core.ILogger
	now    func() time.Time
}

// NewBatch creates a batch runner. pool and sink may be nil: periods then run
// sequentially and results are only returned.
func NewBatch(engine *Engine, pool *concurrency.WorkerPool, sink ResultSink, logger core.ILogger) *Batch {
	return &Batch{
		engine: engine,
		pool:   pool,
		sink:   sink,
		logger: logger.WithField("component", "batch"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the reference time periods are measured from.
func (b *Batch) SetClock(now func() time.Time) {
	b.now = now
}

// Run simulates every period independently. Periods without data are skipped
// and reported with a nil Result. The first simulation error aborts the batch.
func (b *Batch) Run(ctx context.Context, universe string, cache map[string][]core.Bar, periods []Period, capital decimal.Decimal) ([]Outcome, error) {
	now := b.now()
	outcomes := make([]Outcome, len(periods))

	tasks := make([]func(context.Context) error, len(periods))
	for i, p := range periods {
		i, p := i, p
		outcomes[i] = Outcome{
			RunID:    uuid.NewString(),
			Strategy: b.engine.Strategy().Name(),
			Universe: universe,
			Period:   p,
		}
		tasks[i] = func(ctx context.Context) error {
			from, to := p.Window(now)
			slice := SliceUniverse(cache, from, to)
			if len(slice) == 0 {
				b.logger.Warn("No data in period", "period", p.Label())
				return nil
			}
			res, err := b.engine.Run(ctx, slice, capital)
			if err != nil {
				return fmt.Errorf("period %s: %w", p.Label(), err)
			}
			outcomes[i].Result = res
			b.logger.Info("Period complete",
				"period", p.Label(),
				"final_equity", res.FinalEquity.StringFixed(2),
				"invested", res.TotalInvested.StringFixed(2),
			)
			return nil
		}
	}

	if err := b.execute(ctx, tasks); err != nil {
		return nil, err
	}

	if b.sink != nil {
		for _, o := range outcomes {
			if o.Result == nil {
				continue
			}
			if err := b.sink.Write(ctx, o); err != nil {
				return outcomes, fmt.Errorf("write period %s: %w", o.Period.Label(), err)
			}
		}
	}
	return outcomes, nil
}

func (b *Batch) execute(ctx context.Context, tasks []func(context.Context) error) error {
	if b.pool != nil {
		return b.pool.RunAll(ctx, tasks)
	}
	for _, task := range tasks {
		if err := concurrency.Recover(task)(ctx); err != nil {
			return err
		}
	}
	return nil
}
