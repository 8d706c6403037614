package apperrors

import "errors"

// Broker and market data errors
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrNoData                = errors.New("no data")
)

// Engine errors
var (
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrStateCorrupt       = errors.New("persisted state corrupt")
)

// ErrTaskPanicked marks a pooled task that panicked instead of returning.
var ErrTaskPanicked = errors.New("task panicked")
