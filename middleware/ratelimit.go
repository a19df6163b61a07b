// Package middleware provides store-backed HTTP rate limiting. Bucket state
// lives in a store.Store rather than in process memory, so a Redis-backed
// deployment carries client budgets across restarts and lets instances hand
// state to each other. There is no cross-writer coordination: concurrent
// checks for the same key race on the store and the last write wins.
package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/yourusername/flowfence/core"
	"github.com/yourusername/flowfence/store"
)

// KeyFunc extracts a client identifier from the request.
type KeyFunc func(*http.Request) string

// Config for creating a rate limiter. InfoRate and BurstSize must be
// positive.
type Config struct {
	InfoRate  float64     // Sustained rate in tokens per second
	BurstSize float64     // Maximum tokens (burst ceiling)
	Cost      float64     // Tokens per request; 0 means 1, fractional allowed
	KeyFunc   KeyFunc     // Optional: custom key extraction
	Store     store.Store // Optional: custom store (defaults to in-memory)
}

// Verdict is the outcome of a rate limit check.
type Verdict struct {
	Allowed    bool
	Remaining  float64
	Limit      float64
	RetryAfter time.Duration
}

// RateLimiter provides HTTP middleware for rate limiting. Policy lives here;
// the store carries only each client's token level and checkpoint, so policy
// changes take effect on a client's next request.
type RateLimiter struct {
	infoRate  float64
	burstSize float64
	cost      float64
	keyFunc   KeyFunc
	store     store.Store
}

// NewRateLimiter creates a new rate limiting middleware.
func NewRateLimiter(config Config) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = defaultKeyFunc
	}
	if config.Store == nil {
		config.Store = store.NewMemoryStore()
	}
	if config.Cost <= 0 {
		config.Cost = 1
	}

	return &RateLimiter{
		infoRate:  config.InfoRate,
		burstSize: config.BurstSize,
		cost:      config.Cost,
		keyFunc:   config.KeyFunc,
		store:     config.Store,
	}
}

// defaultKeyFunc identifies clients by remote IP.
func defaultKeyFunc(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Check runs a rate limit check for key outside of HTTP handling, consuming
// the configured cost when it conforms.
func (rl *RateLimiter) Check(key string) Verdict {
	return rl.check(key, rl.cost)
}

// check runs one store round trip for key: load the snapshot, replay the
// elapsed time, decide, store the new level. Unknown keys start with a full
// bucket.
func (rl *RateLimiter) check(key string, cost float64) Verdict {
	seed := core.State{
		InfoRate:  rl.infoRate,
		BurstSize: rl.burstSize,
		Tokens:    rl.burstSize,
		LastCheck: core.SystemClock(),
	}
	if st := rl.store.Get(key); st != nil {
		// The snapshot contributes only the dynamic pair; policy always
		// comes from the limiter's own config.
		seed.Tokens = st.Tokens
		seed.LastCheck = st.LastCheck
	}

	bucket, err := core.Restore(seed)
	if err != nil {
		log.Printf("ratelimit: unusable policy for %s (%v), allowing request", key, err)
		return Verdict{Allowed: true, Remaining: rl.burstSize, Limit: rl.burstSize}
	}

	verdict := Verdict{Limit: rl.burstSize}
	if bucket.Conforms(cost) {
		bucket.Consume(cost)
		verdict.Allowed = true
	} else {
		verdict.RetryAfter = bucket.Until(cost)
	}
	verdict.Remaining = bucket.Tokens()

	st := bucket.State()
	rl.store.Set(key, &st)

	return verdict
}

// Middleware wraps an http.Handler with rate limiting. Every response carries
// X-RateLimit-Limit and X-RateLimit-Remaining; rejected requests get a 429
// with Retry-After and a JSON body.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.keyFunc(r)
		verdict := rl.check(key, rl.cost)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", verdict.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", verdict.Remaining))

		if !verdict.Allowed {
			retrySeconds := int64(math.Ceil(verdict.RetryAfter.Seconds()))
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":          "rate_limit_exceeded",
				"message":        "Too many requests. Please try again later.",
				"retry_after_ms": verdict.RetryAfter.Milliseconds(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
