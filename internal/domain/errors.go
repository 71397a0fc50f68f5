package domain

import "errors"

// Analysis errors. Callers classify failures with errors.Is.
var (
	// ErrInvalidIdentifier is returned for malformed mint addresses.
	// No store or network call is made.
	ErrInvalidIdentifier = errors.New("invalid token identifier")

	// ErrTokenNotFound is returned when the upstream source has no trades for the token.
	ErrTokenNotFound = errors.New("token not found")

	// ErrInsufficientData is returned when fewer than MinDays days of history exist.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrUpstream is returned for transient upstream failures (network, rate limit, API errors).
	ErrUpstream = errors.New("upstream unavailable")

	// ErrStorage is matched by every storage backend failure.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidFeatures is returned when a feature vector violates the classifier contract.
	ErrInvalidFeatures = errors.New("invalid feature vector")

	// ErrTimeout is returned when the analysis deadline expires.
	ErrTimeout = errors.New("analysis deadline exceeded")
)
