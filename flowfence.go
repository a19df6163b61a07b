package flowfence

import (
	"github.com/yourusername/flowfence/middleware"
)

// Re-export main types for convenience
type (
	Config      = middleware.Config
	RateLimiter = middleware.RateLimiter
	KeyFunc     = middleware.KeyFunc
	Verdict     = middleware.Verdict
)

// NewRateLimiter creates a new rate limiter
var NewRateLimiter = middleware.NewRateLimiter
