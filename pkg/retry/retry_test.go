package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "walkforward/pkg/errors"

	"github.com/stretchr/testify/assert"
)

var fastPolicy = RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, IsTransient, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", apperrors.ErrNetwork)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, IsTransient, func() error {
		calls++
		return fmt.Errorf("buy: %w", apperrors.ErrInsufficientFunds)
	})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, IsTransient, func() error {
		calls++
		return apperrors.ErrRateLimitExceeded
	})
	assert.ErrorIs(t, err, apperrors.ErrRateLimitExceeded)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second}
	err := Do(ctx, slow, IsTransient, func() error { return apperrors.ErrNetwork })
	assert.ErrorIs(t, err, context.Canceled)
}
