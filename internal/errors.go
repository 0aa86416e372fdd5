package tiercache

import "errors"

// Sentinel errors for the cache domain.
var (
	ErrNotFound        = errors.New("not found")
	ErrConfiguration   = errors.New("unknown namespace")
	ErrValidation      = errors.New("invalid input")
	ErrTierUnavailable = errors.New("durable tier unavailable")
	ErrSerialization   = errors.New("serialization failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limit exceeded")
)
