package flowfence

import (
	"fmt"
	"time"

	"github.com/yourusername/flowfence/store"
)

// Option is a functional option for configuring a RateLimiter.
type Option func(*rateLimiter) error

// WithStore sets a custom bucket store. If not provided, an in-memory store
// with the configured default policy is used.
func WithStore(s BucketStore) Option {
	return func(rl *rateLimiter) error {
		if s == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		rl.store = s
		return nil
	}
}

// WithSnapshots attaches a snapshot store. Bucket state is then exported on
// eviction and via Persist, and restored on first sight of a key, so client
// budgets survive process restarts. Requires the in-memory bucket store.
func WithSnapshots(snapshots store.Store) Option {
	return func(rl *rateLimiter) error {
		if snapshots == nil {
			return fmt.Errorf("%w: snapshot store cannot be nil", ErrInvalidConfig)
		}
		rl.snapshots = snapshots
		return nil
	}
}

// WithConfig sets the configuration for the rate limiter.
func WithConfig(config *Config) Option {
	return func(rl *rateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(rl *rateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithKeyExtractor sets a custom key extractor function.
func WithKeyExtractor(extractor KeyExtractor) Option {
	return func(rl *rateLimiter) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		rl.keyExtractor = extractor
		return nil
	}
}

// WithDefaults sets the default policy directly. Convenience for basic use:
// infoRate tokens per second, bursts up to burstSize.
func WithDefaults(infoRate, burstSize float64) Option {
	return func(rl *rateLimiter) error {
		if infoRate <= 0 {
			return ErrInvalidInfoRate
		}
		if burstSize <= 0 {
			return ErrInvalidBurstSize
		}

		rl.config = &Config{
			Defaults: PolicyConfig{
				InfoRate:  infoRate,
				BurstSize: burstSize,
				Enabled:   true,
			},
			Policies:     make(map[string]PolicyConfig),
			KeyExtractor: "ip",
			CleanupAge:   "1h",
		}
		return nil
	}
}

// WithCleanupAge sets the idle age after which buckets are evicted.
// 0 disables eviction.
func WithCleanupAge(age time.Duration) Option {
	return func(rl *rateLimiter) error {
		if age < 0 {
			return fmt.Errorf("%w: cleanup age cannot be negative", ErrInvalidConfig)
		}
		rl.cleanupAge = age
		rl.cleanupAgeSet = true
		return nil
	}
}

// WithCleanupInterval sets how often the background cleanup goroutine runs.
// Only used when StartBackgroundCleanup is called. Default: 10 minutes.
func WithCleanupInterval(interval time.Duration) Option {
	return func(rl *rateLimiter) error {
		if interval < 0 {
			return fmt.Errorf("%w: cleanup interval cannot be negative", ErrInvalidConfig)
		}
		rl.cleanupInterval = interval
		return nil
	}
}

// RouteExtractorFunc normalizes a request path to a route. The default is
// the identity; replace it to collapse path parameters
// (e.g. /users/123 -> /users/:id) so they share one policy.
type RouteExtractorFunc func(path string) string

// WithRouteExtractor sets the route normalization function.
func WithRouteExtractor(fn RouteExtractorFunc) Option {
	return func(rl *rateLimiter) error {
		if fn == nil {
			return fmt.Errorf("%w: route extractor cannot be nil", ErrInvalidConfig)
		}
		rl.routeExtractor = fn
		return nil
	}
}
