package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrValidation      = errors.New("invalid payload or price sample")
	ErrNotFound        = errors.New("resource not found")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Lifecycle Errors
	// ErrOpenTradeExists enforces the one-open-trade-per-ticker invariant: a
	// second WAITING or ACTIVE trade was attempted for a ticker that already
	// has one. Non-fatal; callers treat it as "trade already open".
	ErrOpenTradeExists = errors.New("an open trade already exists for this ticker")
	// ErrTradeClosed signals a mutation attempted on a trade that has already
	// reached CLOSED. Closed trades are immutable.
	ErrTradeClosed = errors.New("trade is already closed")

	// Price Feed Errors
	ErrFeedUnavailable  = errors.New("price feed is unavailable")
	ErrConnectionFailed = errors.New("failed to connect to the price feed")
	ErrRateLimited      = errors.New("price feed rate limit exceeded")
	ErrInvalidRequest   = errors.New("invalid request parameters or format")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
