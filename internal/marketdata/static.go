package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"

	"github.com/shopspring/decimal"
)

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// StaticFetcher serves bars from memory, for offline runs and tests.
type StaticFetcher struct {
	mu     sync.RWMutex
	series map[string][]core.Bar
}

// NewStaticFetcher copies and sorts the given series.
func NewStaticFetcher(series map[string][]core.Bar) *StaticFetcher {
	f := &StaticFetcher{series: make(map[string][]core.Bar, len(series))}
	for sym, bars := range series {
		f.SetSeries(sym, bars)
	}
	return f
}

// SetSeries replaces the bars served for symbol.
func (f *StaticFetcher) SetSeries(symbol string, bars []core.Bar) {
	cp := make([]core.Bar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Time.Before(cp[j].Time) })

	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[symbol] = cp
}

// Symbols returns the loaded symbols in lexical order.
func (f *StaticFetcher) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.series))
	for s := range f.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Fetch returns the bars whose date falls in [start, end].
func (f *StaticFetcher) Fetch(_ context.Context, symbol, _ string, start, end time.Time) []core.Bar {
	from, to := TruncateDay(start), TruncateDay(end)

	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []core.Bar
	for _, b := range f.series[symbol] {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// LastPrice returns the close of the most recent bar.
func (f *StaticFetcher) LastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bars := f.series[symbol]
	if len(bars) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrNoData, symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// CSVFileName maps a symbol to its file name; "/" is not allowed in paths.
func CSVFileName(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_") + ".csv"
}

// LoadCSVDir reads one <SYMBOL>.csv per requested symbol. Missing files are
// skipped so a partial cache still serves what it has.
func LoadCSVDir(dir string, symbols []string, logger core.ILogger) (*StaticFetcher, error) {
	f := NewStaticFetcher(nil)
	for _, sym := range symbols {
		path := filepath.Join(dir, CSVFileName(sym))
		bars, err := readCSV(path, sym)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("No cached bars", "symbol", sym, "path", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		f.SetSeries(sym, bars)
	}
	return f, nil
}

func readCSV(path, symbol string) ([]core.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(csvHeader)
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}

	var bars []core.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		bar, err := parseRecord(symbol, rec)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseRecord(symbol string, rec []string) (core.Bar, error) {
	day, err := time.Parse(time.DateOnly, rec[0])
	if err != nil {
		return core.Bar{}, err
	}
	vals := make([]decimal.Decimal, 5)
	for i := range vals {
		if vals[i], err = decimal.NewFromString(rec[i+1]); err != nil {
			return core.Bar{}, fmt.Errorf("column %s: %w", csvHeader[i+1], err)
		}
	}
	return core.Bar{
		Symbol: symbol,
		Time:   day,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// WriteCSV stores raw bars so later runs can use LoadCSVDir offline.
func WriteCSV(dir, symbol string, bars []core.Bar) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(dir, CSVFileName(symbol)))
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(time.DateOnly),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
