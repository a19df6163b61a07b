package flowfence

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/yourusername/flowfence/store"
)

// RateLimiter is the main interface for keyed rate limiting.
type RateLimiter interface {
	// Allow checks whether one token's worth of work is allowed for key.
	Allow(key string) (*Decision, error)

	// AllowN checks whether n tokens' worth of work is allowed for key.
	// n may be fractional (e.g. request cost weighted by payload size).
	AllowN(key string, n float64) (*Decision, error)

	// AllowRequest extracts the key from the request with the configured
	// extractor and checks it against the policy for the request's route.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware returns an HTTP middleware that applies rate limiting.
	Middleware(next http.Handler) http.Handler

	// Persist exports every live bucket to the configured snapshot store.
	// Returns the number exported; 0 when snapshots are not configured.
	Persist() (int, error)

	// StartBackgroundCleanup periodically evicts idle buckets until the
	// returned stop function is called.
	StartBackgroundCleanup() func()
}

// Decision contains the result of a rate limit check.
type Decision struct {
	// Allowed indicates whether the work should proceed
	Allowed bool

	// Remaining is the token level left in the bucket after this check
	Remaining float64

	// Limit is the bucket's burst size
	Limit float64

	// RetryAfter is how long to wait before the checked amount would be
	// allowed. 0 when Allowed is true.
	RetryAfter time.Duration

	// Key is the rate limit key that was used
	Key string

	// Route is the route path that was checked (AllowRequest only)
	Route string
}

// rateLimiter is the concrete implementation of RateLimiter.
type rateLimiter struct {
	store           BucketStore
	config          *Config
	keyExtractor    KeyExtractor
	routeExtractor  func(string) string
	cleanupAge      time.Duration
	cleanupAgeSet   bool
	cleanupInterval time.Duration
	snapshots       store.Store

	// Routes with their own policy get their own store, built lazily.
	routeStores map[string]BucketStore
	routeMu     sync.Mutex
}

// New creates a RateLimiter. With no options it limits by client IP at the
// default policy (50 tokens/sec, burst 100) using an in-memory store.
//
// Example:
//
//	limiter, err := flowfence.New(
//	    flowfence.WithDefaults(10.0, 100),  // 10 tokens/sec, burst 100
//	    flowfence.WithKeyExtractor(flowfence.ExtractIPWithProxy()),
//	)
func New(opts ...Option) (RateLimiter, error) {
	rl := &rateLimiter{
		config:          NewConfig(),
		routeExtractor:  func(path string) string { return path },
		cleanupAge:      1 * time.Hour,
		cleanupInterval: 10 * time.Minute,
		routeStores:     make(map[string]BucketStore),
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Key extractor from config unless an option supplied one
	if rl.keyExtractor == nil {
		extractor, err := ParseKeyExtractorConfig(rl.config.KeyExtractor)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key extractor config: %w", err)
		}
		rl.keyExtractor = extractor
	}

	// Cleanup age from config unless an option supplied one
	if rl.config.CleanupAge != "" && !rl.cleanupAgeSet {
		age, err := time.ParseDuration(rl.config.CleanupAge)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cleanup_age %q: %v", ErrInvalidConfig, rl.config.CleanupAge, err)
		}
		rl.cleanupAge = age
	}

	// Default store unless an option supplied one
	if rl.store == nil {
		s, err := NewInMemoryStore(rl.config.Defaults.ToBucketConfig(), rl.cleanupAge)
		if err != nil {
			return nil, fmt.Errorf("failed to create default store: %w", err)
		}
		rl.store = s
	}

	if rl.snapshots != nil {
		ims, ok := rl.store.(*InMemoryStore)
		if !ok {
			return nil, fmt.Errorf("%w: snapshots require the in-memory store", ErrInvalidConfig)
		}
		ims.UseSnapshots(rl.snapshots)
	}

	return rl, nil
}

// Allow checks whether one token's worth of work is allowed for key.
func (rl *rateLimiter) Allow(key string) (*Decision, error) {
	return rl.AllowN(key, 1)
}

// AllowN checks whether n tokens' worth of work is allowed for key.
func (rl *rateLimiter) AllowN(key string, n float64) (*Decision, error) {
	return rl.allowOn(rl.store, key, n)
}

func (rl *rateLimiter) allowOn(s BucketStore, key string, n float64) (*Decision, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	bucket, err := s.GetBucket(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	allowed := bucket.AllowN(n)

	decision := &Decision{
		Allowed:   allowed,
		Remaining: bucket.Tokens(),
		Limit:     bucket.BurstSize(),
		Key:       key,
	}
	if !allowed {
		decision.RetryAfter = bucket.Until(n)
	}

	return decision, nil
}

// AllowRequest checks an HTTP request against the policy for its route.
// Routes without a policy of their own share the default store; routes with
// one get a separate bucket space, so a client's budget on /api/login is
// independent of its budget everywhere else.
func (rl *rateLimiter) AllowRequest(r *http.Request) (*Decision, error) {
	key, err := rl.keyExtractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}

	route := rl.routeExtractor(r.URL.Path)
	policy, specific := rl.config.LookupPolicy(route)

	if !policy.Enabled {
		return &Decision{
			Allowed:   true,
			Remaining: policy.BurstSize,
			Limit:     policy.BurstSize,
			Key:       key,
			Route:     route,
		}, nil
	}

	s := rl.store
	if specific {
		s, err = rl.storeFor(route, policy)
		if err != nil {
			return nil, err
		}
	}

	decision, err := rl.allowOn(s, key, 1)
	if err != nil {
		return nil, err
	}
	decision.Route = route

	return decision, nil
}

// storeFor returns the bucket store for a route with its own policy,
// creating it on first use.
func (rl *rateLimiter) storeFor(route string, policy PolicyConfig) (BucketStore, error) {
	rl.routeMu.Lock()
	defer rl.routeMu.Unlock()

	if s, ok := rl.routeStores[route]; ok {
		return s, nil
	}

	s, err := NewInMemoryStore(policy.ToBucketConfig(), rl.cleanupAge)
	if err != nil {
		return nil, fmt.Errorf("failed to create store for route %s: %w", route, err)
	}
	if rl.snapshots != nil {
		// Route buckets persist under a route-scoped namespace
		s.UseSnapshots(prefixedSnapshots{prefix: route + "|", inner: rl.snapshots})
	}
	rl.routeStores[route] = s

	return s, nil
}

// Middleware returns an HTTP middleware that applies rate limiting.
// It sets standard rate limit headers and returns 429 when limits are
// exceeded:
//   - X-RateLimit-Limit: burst size of the applied policy
//   - X-RateLimit-Remaining: tokens left in the client's bucket
//   - X-RateLimit-Reset: Unix timestamp when the checked amount conforms again
//   - Retry-After: seconds to wait before retrying (when rate limited)
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.AllowRequest(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", decision.Remaining))

		if !decision.Allowed {
			retrySeconds := math.Ceil(decision.RetryAfter.Seconds())
			resetTime := time.Now().Add(decision.RetryAfter).Unix()
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retrySeconds))

			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Persist exports every live bucket, default store and route stores alike.
func (rl *rateLimiter) Persist() (int, error) {
	total, err := rl.store.Persist()
	if err != nil {
		return total, err
	}

	rl.routeMu.Lock()
	defer rl.routeMu.Unlock()
	for route, s := range rl.routeStores {
		n, err := s.Persist()
		total += n
		if err != nil {
			return total, fmt.Errorf("persisting route %s: %w", route, err)
		}
	}
	return total, nil
}

// StartBackgroundCleanup evicts idle buckets from every store on the
// configured interval. Call the returned function to stop.
func (rl *rateLimiter) StartBackgroundCleanup() func() {
	if rl.cleanupAge == 0 || rl.cleanupInterval == 0 {
		return func() {}
	}

	ticker := time.NewTicker(rl.cleanupInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				rl.store.Cleanup()
				rl.routeMu.Lock()
				for _, s := range rl.routeStores {
					s.Cleanup()
				}
				rl.routeMu.Unlock()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
