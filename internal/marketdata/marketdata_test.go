package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"walkforward/internal/core"
	"walkforward/internal/mock"
	"walkforward/internal/trading/fill"
	apperrors "walkforward/pkg/errors"
	wfhttp "walkforward/pkg/http"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcher(t *testing.T, handler http.HandlerFunc) *AlpacaFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := wfhttp.DefaultOptions()
	opts.MaxRetries = 0
	client := wfhttp.NewClientWithOptions(server.URL, time.Second, nil, opts)
	return NewAlpacaFetcher(client, fill.NewClassifier([]string{"DOGEUSD"}), AlpacaConfig{Feed: "iex"}, &mock.NoopLogger{})
}

func TestAlpacaFetcher_StockPagination(t *testing.T) {
	var pages int32
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/stocks/SPY/bars", r.URL.Path)
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "split", r.URL.Query().Get("adjustment"))
		assert.Equal(t, "iex", r.URL.Query().Get("feed"))

		if atomic.AddInt32(&pages, 1) == 1 {
			assert.Empty(t, r.URL.Query().Get("page_token"))
			_, _ = w.Write([]byte(`{"bars":[
				{"t":"2024-01-03T05:00:00Z","o":471,"h":473,"l":470,"c":472.65,"v":1000},
				{"t":"2024-01-02T05:00:00Z","o":470,"h":472,"l":469,"c":470.5,"v":900}
			],"next_page_token":"abc"}`))
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("page_token"))
		_, _ = w.Write([]byte(`{"bars":[{"t":"2024-01-04T05:00:00Z","o":472,"h":474,"l":471,"c":473,"v":1100}],"next_page_token":null}`))
	})

	bars := f.Fetch(context.Background(), "SPY", "1Day", mock.Day(0), mock.Day(10))
	require.Len(t, bars, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pages))

	assert.Equal(t, mock.Day(1), bars[0].Time, "timestamps truncate to UTC dates")
	assert.Equal(t, mock.Day(2), bars[1].Time)
	assert.Equal(t, mock.Day(3), bars[2].Time)
	assert.True(t, bars[1].Close.Equal(decimal.RequireFromString("472.65")))
	assert.Equal(t, "SPY", bars[0].Symbol)
}

func TestAlpacaFetcher_Crypto(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta3/crypto/us/bars", r.URL.Path)
		assert.Equal(t, "BTC/USD", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"bars":{"BTC/USD":[
			{"t":"2024-01-02T00:00:00Z","o":42000,"h":43000,"l":41000,"c":42500.5,"v":12.34}
		]},"next_page_token":null}`))
	})

	bars := f.Fetch(context.Background(), "BTC/USD", "1Day", mock.Day(0), mock.Day(5))
	require.Len(t, bars, 1)
	assert.Equal(t, mock.Day(1), bars[0].Time)
	assert.True(t, bars[0].Volume.Equal(decimal.RequireFromString("12.34")))
}

func TestAlpacaFetcher_FailureYieldsEmpty(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	assert.Empty(t, f.Fetch(context.Background(), "SPY", "1Day", mock.Day(0), mock.Day(5)))
}

func TestAlpacaFetcher_LastPrice(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/stocks/SPY/trades/latest":
			_, _ = w.Write([]byte(`{"symbol":"SPY","trade":{"p":501.25}}`))
		case "/v1beta3/crypto/us/latest/trades":
			_, _ = w.Write([]byte(`{"trades":{"DOGEUSD":{"p":0.081}}}`))
		default:
			_, _ = w.Write([]byte(`{"trade":{}}`))
		}
	})

	p, err := f.LastPrice(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("501.25")))

	p, err = f.LastPrice(context.Background(), "DOGEUSD")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("0.081")))

	_, err = f.LastPrice(context.Background(), "QQQ")
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestStaticFetcher_Window(t *testing.T) {
	f := NewStaticFetcher(map[string][]core.Bar{
		"AAA": mock.Bars("AAA", mock.Epoch, 1, 2, 3, 4, 5),
	})

	got := f.Fetch(context.Background(), "AAA", "1Day", mock.Day(1).Add(5*time.Hour), mock.Day(3))
	require.Len(t, got, 3)
	assert.Equal(t, mock.Day(1), got[0].Time)
	assert.Equal(t, mock.Day(3), got[2].Time)

	assert.Empty(t, f.Fetch(context.Background(), "ZZZ", "1Day", mock.Day(0), mock.Day(9)))

	last, err := f.LastPrice(context.Background(), "AAA")
	require.NoError(t, err)
	assert.True(t, last.Equal(decimal.NewFromInt(5)))

	_, err = f.LastPrice(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, apperrors.ErrNoData)
}

func TestCSVCache(t *testing.T) {
	dir := t.TempDir()
	bars := mock.Bars("BTC/USD", mock.Epoch, 100.5, 101.25, 99)
	require.NoError(t, WriteCSV(dir, "BTC/USD", bars))
	assert.FileExists(t, filepath.Join(dir, "BTC_USD.csv"))

	f, err := LoadCSVDir(dir, []string{"BTC/USD", "MISSING"}, &mock.NoopLogger{})
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD"}, f.Symbols())

	got := f.Fetch(context.Background(), "BTC/USD", "1Day", mock.Epoch, mock.Day(10))
	require.Len(t, got, 3)
	for i := range bars {
		assert.Equal(t, bars[i].Time, got[i].Time)
		assert.True(t, bars[i].Close.Equal(got[i].Close))
		assert.True(t, bars[i].High.Equal(got[i].High))
	}
}

func TestCSVCache_Malformed(t *testing.T) {
	dir := t.TempDir()
	content := "date,open,high,low,close,volume\n2024-01-01,1,2,0,x,10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAA.csv"), []byte(content), 0o600))

	_, err := LoadCSVDir(dir, []string{"AAA"}, &mock.NoopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AAA.csv:2")
}
