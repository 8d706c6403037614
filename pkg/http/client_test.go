package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	apperrors "walkforward/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	opts := DefaultOptions()
	opts.BackoffMin = time.Millisecond
	opts.BackoffMax = 5 * time.Millisecond
	return opts
}

func TestHttpClient_Retry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	client := NewClientWithOptions(server.URL, 5*time.Second, nil, fastOptions())
	body, err := client.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "success", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestHttpClient_CircuitBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClientWithOptions(server.URL, 5*time.Second, nil, fastOptions())
	for i := 0; i < 6; i++ {
		_, _ = client.Get(context.Background(), "/", nil)
	}

	before := atomic.LoadInt32(&attempts)
	_, err := client.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.Equal(t, before, atomic.LoadInt32(&attempts), "open breaker must not reach the server")
}

func TestHttpClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, apperrors.ErrAuthenticationFailed},
		{http.StatusForbidden, apperrors.ErrAuthenticationFailed},
		{http.StatusNotFound, apperrors.ErrNoData},
		{http.StatusUnprocessableEntity, apperrors.ErrOrderRejected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			client := NewClientWithOptions(server.URL, time.Second, nil, fastOptions())
			_, err := client.Get(context.Background(), "/x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func TestHttpClient_SignsAndEncodes(t *testing.T) {
	var gotKey, gotSecret, gotQuery, gotBody, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		gotSecret = r.Header.Get("APCA-API-SECRET-KEY")
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClientWithOptions(server.URL, time.Second, NewAlpacaSigner("id", "secret"), fastOptions())

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.GetJSON(context.Background(), "/v2/account", url.Values{"a": {"1"}}, &out))
	assert.True(t, out.OK)
	assert.Equal(t, "id", gotKey)
	assert.Equal(t, "secret", gotSecret)
	assert.Equal(t, "a=1", gotQuery)

	_, err := client.Post(context.Background(), "/v2/orders", map[string]string{"symbol": "SPY"})
	require.NoError(t, err)
	assert.Equal(t, `{"symbol":"SPY"}`, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestHeaderSigner_MissingCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := NewAlpacaSigner("", "").SignRequest(req)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
}
