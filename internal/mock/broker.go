package mock

import (
	"context"

	"walkforward/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockBroker implements core.Broker with testify expectations
type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Account(ctx context.Context) (core.AccountInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(core.AccountInfo), args.Error(1)
}

func (m *MockBroker) Position(ctx context.Context, symbol string) (core.PositionInfo, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(core.PositionInfo), args.Error(1)
}

func (m *MockBroker) SubmitMarketOrder(ctx context.Context, req core.OrderRequest) (*core.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.Order), args.Error(1)
}

// MockOrderExecutor implements core.IOrderExecutor with testify expectations
type MockOrderExecutor struct {
	mock.Mock
}

func (m *MockOrderExecutor) PlaceMarketOrder(ctx context.Context, symbol string, side core.OrderSide, qty decimal.Decimal) (*core.Order, error) {
	args := m.Called(ctx, symbol, side, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.Order), args.Error(1)
}

// NoopLogger discards all log output
type NoopLogger struct{}

func (l *NoopLogger) Debug(msg string, fields ...interface{})               {}
func (l *NoopLogger) Info(msg string, fields ...interface{})                {}
func (l *NoopLogger) Warn(msg string, fields ...interface{})                {}
func (l *NoopLogger) Error(msg string, fields ...interface{})               {}
func (l *NoopLogger) Fatal(msg string, fields ...interface{})               {}
func (l *NoopLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *NoopLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }
