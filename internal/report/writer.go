// Package report writes finished backtest runs to disk.
package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"walkforward/internal/core"
	"walkforward/internal/engine/walkforward"
	"walkforward/internal/trading/ledger"
	"walkforward/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

const rule = "-----------------------------------------------------------------"

// Writer is a walkforward.ResultSink producing one text report, and
// optionally a JSONL ledger, per outcome under <dir>/<strategy>/.
type Writer struct {
	dir    string
	jsonl  bool
	logger core.ILogger
	now    func() time.Time
}

func NewWriter(dir string, jsonl bool, logger core.ILogger) *Writer {
	return &Writer{
		dir:    dir,
		jsonl:  jsonl,
		logger: logger.WithField("component", "report"),
		now:    time.Now,
	}
}

// SetClock overrides the time used in file names.
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

var _ walkforward.ResultSink = (*Writer)(nil)

// Write renders o to <dir>/<strategy>/backtest_<universe>_<period>_<ts>.txt.
func (w *Writer) Write(ctx context.Context, o walkforward.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.Result == nil {
		return nil
	}

	folder := filepath.Join(w.dir, o.Strategy)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	base := filepath.Join(folder, FileStem(o, w.now()))

	if err := writeFile(base+".txt", func(bw io.Writer) error { return Render(bw, o) }); err != nil {
		return err
	}
	if w.jsonl {
		if err := writeFile(base+".jsonl", func(bw io.Writer) error { return ExportJSONL(bw, o.Result.Ledger) }); err != nil {
			return err
		}
	}
	w.logger.Info("Report written", "path", base+".txt", "run_id", o.RunID)
	return nil
}

// FileStem is the report name without extension.
func FileStem(o walkforward.Outcome, at time.Time) string {
	return fmt.Sprintf("backtest_%s_%s_%s", o.Universe, o.Period.Label(), at.Format("20060102_150405"))
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := render(bw); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Render writes the text report. The ledger's TOTAL_INVESTED record is
// consumed here; if another consumer already took it, the Result's total is
// used instead.
func Render(out io.Writer, o walkforward.Outcome) error {
	res := o.Result
	invested, ok := res.Ledger.PopTotalInvested()
	if !ok {
		invested = res.TotalInvested
	}
	roi := tradingutils.ROIPercent(invested, res.FinalEquity)

	var b strings.Builder
	fmt.Fprintf(&b, "STRATEGY: %s\n", o.Strategy)
	fmt.Fprintf(&b, "UNIVERSE: %s\n", o.Universe)
	fmt.Fprintf(&b, "PERIOD:   %s\n", o.Period.Label())
	fmt.Fprintf(&b, "INVESTED: $%s\n", money(invested))
	fmt.Fprintf(&b, "FINAL:    $%s\n", money(res.FinalEquity))
	fmt.Fprintf(&b, "RETURN:   %s%%\n", roi.StringFixed(2))
	b.WriteString(rule + "\n")

	records := res.Ledger.Records()
	for _, e := range records {
		b.WriteString(line(e))
	}

	s := Summarize(records)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "TRADES:   %d\n", s.Trades)
	fmt.Fprintf(&b, "WIN RATE: %s%%\n", s.WinRate.StringFixed(2))
	fmt.Fprintf(&b, "PROFIT F: %s\n", s.profitFactorString())
	fmt.Fprintf(&b, "MAX DD:   %s%%\n", s.MaxDrawdown.StringFixed(2))

	_, err := io.WriteString(out, b.String())
	return err
}

func line(e ledger.Entry) string {
	date := e.Time.UTC().Format("2006-01-02")
	price := e.Price.StringFixed(2)
	if e.Kind == ledger.KindDeposit {
		return fmt.Sprintf("%s | %-7s | %-6s | %-8s | +%-7s | %s\n",
			date, e.Kind, e.Symbol, price, price, e.Balance.StringFixed(2))
	}
	pnl := "-"
	if !e.PnL.IsZero() {
		pnl = money(e.PnL)
	}
	return fmt.Sprintf("%s | %-7s | %-6s | %-8s | %-8s | %s\n",
		date, e.Kind, e.Symbol, price, pnl, e.Balance.StringFixed(2))
}

// money formats d with two decimals and thousands separators.
func money(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 && !(b.Len() == 1 && d.IsNegative()) {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(frac)
	return b.String()
}

// ExportJSONL writes every ledger record, terminal included, one JSON object per line.
func ExportJSONL(out io.Writer, l *ledger.Ledger) error {
	enc := json.NewEncoder(out)
	for _, e := range l.Entries() {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
