// Package marketdata loads daily bars for the backtester and the live trader
package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"walkforward/internal/core"
	"walkforward/internal/trading/fill"
	apperrors "walkforward/pkg/errors"
	wfhttp "walkforward/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultPageLimit = 10000
	stockBarsPath    = "/v2/stocks/%s/bars"
	stockTradePath   = "/v2/stocks/%s/trades/latest"
	cryptoBarsPath   = "/v1beta3/crypto/us/bars"
	cryptoTradePath  = "/v1beta3/crypto/us/latest/trades"
)

type apiBar struct {
	Time   time.Time       `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

type stockBarsResponse struct {
	Bars          []apiBar `json:"bars"`
	NextPageToken *string  `json:"next_page_token"`
}

type cryptoBarsResponse struct {
	Bars          map[string][]apiBar `json:"bars"`
	NextPageToken *string             `json:"next_page_token"`
}

type apiTrade struct {
	Price decimal.Decimal `json:"p"`
}

// AlpacaConfig configures the data API client.
type AlpacaConfig struct {
	// Feed selects the stock data feed, e.g. "iex" or "sip". Empty uses the account default.
	Feed string
	// Adjustment applied to stock bars. Defaults to "split".
	Adjustment string
	// RequestsPerSecond paces page requests. Zero disables pacing.
	RequestsPerSecond float64
	PageLimit         int
}

// AlpacaFetcher reads daily bars from the Alpaca market data REST API.
type AlpacaFetcher struct {
	client     *wfhttp.Client
	classifier fill.Classifier
	cfg        AlpacaConfig
	limiter    *rate.Limiter
	logger     core.ILogger
}

// NewAlpacaFetcher creates a fetcher. The classifier routes symbols to the
// stock or crypto endpoints.
func NewAlpacaFetcher(client *wfhttp.Client, classifier fill.Classifier, cfg AlpacaConfig, logger core.ILogger) *AlpacaFetcher {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.Adjustment == "" {
		cfg.Adjustment = "split"
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &AlpacaFetcher{
		client:     client,
		classifier: classifier,
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger.WithField("component", "alpaca_data"),
	}
}

// Fetch returns bars in [start, end] ordered by date. Failures are logged and
// yield an empty slice.
func (f *AlpacaFetcher) Fetch(ctx context.Context, symbol, timeframe string, start, end time.Time) []core.Bar {
	var (
		raw []apiBar
		err error
	)
	if f.classifier.Class(symbol) == core.AssetCrypto {
		raw, err = f.fetchCrypto(ctx, symbol, timeframe, start, end)
	} else {
		raw, err = f.fetchStock(ctx, symbol, timeframe, start, end)
	}
	if err != nil {
		f.logger.Warn("Bar fetch failed", "symbol", symbol, "error", err)
		return nil
	}
	return normalise(symbol, raw)
}

func (f *AlpacaFetcher) fetchStock(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]apiBar, error) {
	params := f.baseParams(timeframe, start, end)
	params.Set("adjustment", f.cfg.Adjustment)
	if f.cfg.Feed != "" {
		params.Set("feed", f.cfg.Feed)
	}
	path := fmt.Sprintf(stockBarsPath, url.PathEscape(symbol))

	var out []apiBar
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return out, err
		}
		var resp stockBarsResponse
		if err := f.client.GetJSON(ctx, path, params, &resp); err != nil {
			return out, err
		}
		out = append(out, resp.Bars...)
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			return out, nil
		}
		params.Set("page_token", *resp.NextPageToken)
	}
}

func (f *AlpacaFetcher) fetchCrypto(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]apiBar, error) {
	params := f.baseParams(timeframe, start, end)
	params.Set("symbols", symbol)

	var out []apiBar
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return out, err
		}
		var resp cryptoBarsResponse
		if err := f.client.GetJSON(ctx, cryptoBarsPath, params, &resp); err != nil {
			return out, err
		}
		out = append(out, resp.Bars[symbol]...)
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			return out, nil
		}
		params.Set("page_token", *resp.NextPageToken)
	}
}

func (f *AlpacaFetcher) baseParams(timeframe string, start, end time.Time) url.Values {
	if timeframe == "" {
		timeframe = "1Day"
	}
	return url.Values{
		"timeframe": {timeframe},
		"start":     {start.UTC().Format(time.RFC3339)},
		"end":       {end.UTC().Format(time.RFC3339)},
		"limit":     {fmt.Sprintf("%d", f.cfg.PageLimit)},
	}
}

// LastPrice returns the most recent trade price for a symbol.
func (f *AlpacaFetcher) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	var price decimal.Decimal
	if f.classifier.Class(symbol) == core.AssetCrypto {
		var resp struct {
			Trades map[string]apiTrade `json:"trades"`
		}
		if err := f.client.GetJSON(ctx, cryptoTradePath, url.Values{"symbols": {symbol}}, &resp); err != nil {
			return decimal.Zero, fmt.Errorf("latest trade %s: %w", symbol, err)
		}
		price = resp.Trades[symbol].Price
	} else {
		params := url.Values{}
		if f.cfg.Feed != "" {
			params.Set("feed", f.cfg.Feed)
		}
		var resp struct {
			Trade apiTrade `json:"trade"`
		}
		if err := f.client.GetJSON(ctx, fmt.Sprintf(stockTradePath, url.PathEscape(symbol)), params, &resp); err != nil {
			return decimal.Zero, fmt.Errorf("latest trade %s: %w", symbol, err)
		}
		price = resp.Trade.Price
	}

	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no trade price for %s", apperrors.ErrNoData, symbol)
	}
	return price, nil
}

// normalise truncates timestamps to UTC dates, keeps the last bar per date
// and sorts ascending.
func normalise(symbol string, raw []apiBar) []core.Bar {
	byDate := make(map[time.Time]core.Bar, len(raw))
	for _, b := range raw {
		day := TruncateDay(b.Time)
		byDate[day] = core.Bar{
			Symbol: symbol,
			Time:   day,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	out := make([]core.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// TruncateDay returns midnight UTC of t's UTC date.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
