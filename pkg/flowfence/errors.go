package flowfence

import (
	"errors"

	"github.com/yourusername/flowfence/core"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInfoRate is returned when the information rate is zero or negative.
	// Alias of the core sentinel so callers can match either package.
	ErrInvalidInfoRate = core.ErrInvalidInfoRate

	// ErrInvalidBurstSize is returned when the burst size is zero or negative.
	// Alias of the core sentinel so callers can match either package.
	ErrInvalidBurstSize = core.ErrInvalidBurstSize

	// ErrInvalidKey is returned when the rate limit key is invalid or empty
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrStoreFailed is returned when bucket store operations fail
	ErrStoreFailed = errors.New("store operation failed")

	// ErrKeyExtractionFailed is returned when key extraction from a request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)
