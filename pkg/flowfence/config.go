package flowfence

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rate limiting configuration: a global default policy plus
// per-route overrides.
type Config struct {
	// Defaults apply to every route without an override
	Defaults PolicyConfig `yaml:"defaults"`

	// Policies maps route paths to their own policies.
	// Example: "/api/login" -> strict, "/api/search" -> lenient
	Policies map[string]PolicyConfig `yaml:"policies,omitempty"`

	// KeyExtractor specifies how to identify clients.
	// Examples: "ip", "ip-proxy", "header:X-API-Key", "bearer", "static:global"
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// CleanupAge is how long idle buckets are kept before eviction.
	// Format: "1h", "30m"; "0" disables eviction.
	CleanupAge string `yaml:"cleanup_age,omitempty"`
}

// PolicyConfig defines the token bucket parameters for a route or default.
type PolicyConfig struct {
	// InfoRate is the sustained rate in tokens per second.
	// Example: 10.0 = 10 tokens/sec = 600 requests/minute at cost 1
	InfoRate float64 `yaml:"info_rate"`

	// BurstSize is the maximum number of tokens (burst ceiling)
	BurstSize float64 `yaml:"burst_size"`

	// Enabled allows switching limiting off for specific routes
	Enabled bool `yaml:"enabled"`
}

// NewConfig creates a Config with sensible defaults: 50 tokens/sec with
// bursts up to 100, keyed by client IP, hour-long idle eviction.
func NewConfig() *Config {
	return &Config{
		Defaults: PolicyConfig{
			InfoRate:  50,
			BurstSize: 100,
			Enabled:   true,
		},
		Policies:     make(map[string]PolicyConfig),
		KeyExtractor: "ip",
		CleanupAge:   "1h",
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes, fills in defaults for omitted
// fields, and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if config.KeyExtractor == "" {
		config.KeyExtractor = "ip"
	}
	if config.CleanupAge == "" {
		config.CleanupAge = "1h"
	}
	if config.Policies == nil {
		config.Policies = make(map[string]PolicyConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("%w: invalid defaults: %v", ErrInvalidConfig, err)
	}

	for route, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: invalid policy for route %s: %v", ErrInvalidConfig, route, err)
		}
	}

	if c.CleanupAge != "" {
		if _, err := time.ParseDuration(c.CleanupAge); err != nil {
			return fmt.Errorf("%w: bad cleanup_age %q: %v", ErrInvalidConfig, c.CleanupAge, err)
		}
	}

	if c.KeyExtractor != "" {
		if _, err := ParseKeyExtractorConfig(c.KeyExtractor); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks a single policy.
func (p *PolicyConfig) Validate() error {
	if p.InfoRate <= 0 {
		return ErrInvalidInfoRate
	}
	if p.BurstSize <= 0 {
		return ErrInvalidBurstSize
	}
	return nil
}

// GetPolicy returns the policy for a route, falling back to the defaults.
func (c *Config) GetPolicy(route string) PolicyConfig {
	policy, _ := c.LookupPolicy(route)
	return policy
}

// LookupPolicy returns the policy for a route and whether the route has one
// of its own (false = defaults returned).
func (c *Config) LookupPolicy(route string) (PolicyConfig, bool) {
	if policy, exists := c.Policies[route]; exists {
		return policy, true
	}
	return c.Defaults, false
}

// SetPolicy sets the policy for a specific route.
func (c *Config) SetPolicy(route string, policy PolicyConfig) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Policies == nil {
		c.Policies = make(map[string]PolicyConfig)
	}
	c.Policies[route] = policy
	return nil
}

// ToBucketConfig converts a policy to the bucket store's config type.
func (p *PolicyConfig) ToBucketConfig() BucketConfig {
	return BucketConfig{
		InfoRate:  p.InfoRate,
		BurstSize: p.BurstSize,
	}
}
