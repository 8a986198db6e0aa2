package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Stream / Bar Errors
	ErrBarOutOfOrder = errors.New("bar delivered out of timestamp order")
	ErrDuplicateBar  = errors.New("bar with duplicate open time")
	ErrBarNotFinal   = errors.New("bar is not finalized")

	// Indicator Errors
	ErrIndicatorNotReady = errors.New("indicator warmup window not yet filled")

	// Decision / Exit Errors
	ErrUnknownRegime    = errors.New("regime is not a member of the closed regime set")
	ErrStopTighten      = errors.New("proposed stop would move toward entry")
	ErrStaleDecision    = errors.New("decision computed for a stale bar")
	ErrRiskLimitReached = errors.New("daily risk limit reached")

	// Feed Specific Errors
	ErrFeedUnavailable      = errors.New("market data feed is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the feed")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("feed authentication failed (check API keys)")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
