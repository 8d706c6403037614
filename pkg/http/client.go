// Package http provides a reusable HTTP client with resilience features
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "walkforward/pkg/errors"
	"walkforward/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// APIError represents an API error response
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Unwrap maps well-known status codes onto application errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		return apperrors.ErrRateLimitExceeded
	case http.StatusNotFound:
		return apperrors.ErrNoData
	case http.StatusUnprocessableEntity:
		return apperrors.ErrOrderRejected
	}
	if e.StatusCode >= 500 {
		return apperrors.ErrNetwork
	}
	return nil
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Signer is an interface for signing requests
type Signer interface {
	SignRequest(req *http.Request) error
}

// HeaderSigner sets static key headers, as brokerage REST APIs expect.
type HeaderSigner struct {
	KeyHeader    string
	Key          string
	SecretHeader string
	Secret       string
}

// NewAlpacaSigner returns a signer for APCA key headers.
func NewAlpacaSigner(key, secret string) *HeaderSigner {
	return &HeaderSigner{
		KeyHeader:    "APCA-API-KEY-ID",
		Key:          key,
		SecretHeader: "APCA-API-SECRET-KEY",
		Secret:       secret,
	}
}

func (s *HeaderSigner) SignRequest(req *http.Request) error {
	if s.Key == "" || s.Secret == "" {
		return fmt.Errorf("%w: missing api credentials", apperrors.ErrAuthenticationFailed)
	}
	req.Header.Set(s.KeyHeader, s.Key)
	req.Header.Set(s.SecretHeader, s.Secret)
	return nil
}

// Options tunes the resilience pipeline.
type Options struct {
	MaxRetries    int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BreakerFails  uint
	BreakerWindow uint
	BreakerDelay  time.Duration
}

// DefaultOptions mirrors the policies used for exchange REST traffic.
func DefaultOptions() Options {
	return Options{
		MaxRetries:    3,
		BackoffMin:    100 * time.Millisecond,
		BackoffMax:    2 * time.Second,
		BreakerFails:  5,
		BreakerWindow: 10,
		BreakerDelay:  10 * time.Second,
	}
}

// Client is a wrapper around http.Client with resilience
type Client struct {
	client   *http.Client
	baseURL  string
	signer   Signer
	pipeline failsafe.Executor[*http.Response]

	// OTel
	tracer      trace.Tracer
	reqCounter  metric.Int64Counter
	errCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewClient creates a new HTTP client with default resilience policies
func NewClient(baseURL string, timeout time.Duration, signer Signer) *Client {
	return NewClientWithOptions(baseURL, timeout, signer, DefaultOptions())
}

// NewClientWithOptions creates a client with explicit retry and breaker settings
func NewClientWithOptions(baseURL string, timeout time.Duration, signer Signer, opts Options) *Client {
	// Retry on network errors, 5xx and throttling
	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(opts.BackoffMin, opts.BackoffMax).
		WithMaxRetries(opts.MaxRetries).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(opts.BreakerFails, opts.BreakerWindow).
		WithDelay(opts.BreakerDelay).
		Build()

	tracer := telemetry.GetTracer("http-client")
	meter := telemetry.GetMeter("http-client")

	reqCounter, _ := meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("Total number of outbound HTTP requests"))
	errCounter, _ := meter.Int64Counter("http_client_errors_total",
		metric.WithDescription("Total number of outbound HTTP errors"))
	latencyHist, _ := meter.Float64Histogram(telemetry.MetricHTTPRequestDuration,
		metric.WithDescription("Outbound HTTP latency in milliseconds"))

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:     baseURL,
		signer:      signer,
		pipeline:    failsafe.With[*http.Response](retryPolicy, breaker),
		tracer:      tracer,
		reqCounter:  reqCounter,
		errCounter:  errCounter,
		latencyHist: latencyHist,
	}
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	return c.do(req, nil)
}

// Post sends a JSON POST request
func (c *Client) Post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, payload)
}

// GetJSON decodes a GET response into out
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, payload []byte) ([]byte, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, req.URL.Path),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
		),
	)
	defer span.End()

	req = req.WithContext(ctx)

	if c.signer != nil {
		if err := c.signer.SignRequest(req); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	// Each attempt needs a fresh body reader
	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		if payload != nil {
			req.Body = io.NopCloser(bytes.NewReader(payload))
			req.ContentLength = int64(len(payload))
		}
		return c.client.Do(req)
	})

	attrs := metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("path", req.URL.Path),
	)
	c.reqCounter.Add(ctx, 1, attrs)
	c.latencyHist.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		span.RecordError(err)
		c.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
			attribute.String("error", "pipeline_failed"),
		))
		return nil, fmt.Errorf("request failed: %w: %w", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
			attribute.Int("status", resp.StatusCode),
		))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return body, nil
}
