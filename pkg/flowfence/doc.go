// Package flowfence provides token bucket rate limiting for Go applications.
//
// FlowFence meters flows against an information rate and a burst size: a
// bucket accrues tokens at the configured rate up to the burst ceiling, work
// conforms when enough tokens are available, and conforming work consumes
// them. Burst traffic passes until the ceiling is spent; sustained traffic is
// held to the rate.
//
// # Quick Start
//
// Keyed limiting with the default in-memory store:
//
//	limiter, err := flowfence.New(
//	    flowfence.WithDefaults(10.0, 100), // 10 tokens/sec, bursts up to 100
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := limiter.Allow("user-123")
//	if !decision.Allowed {
//	    fmt.Printf("Rate limited. Retry after %v\n", decision.RetryAfter)
//	}
//
// Weighted work consumes more than one token per check:
//
//	decision, err := limiter.AllowN("user-123", 2.5)
//
// # Single Buckets
//
// A Bucket is one client's limiter without the keyed registry around it:
//
//	bucket, _ := flowfence.NewBucket(25, 4) // 25 tokens/sec, burst 4
//	if bucket.AllowN(3) {
//	    // 3 tokens' worth of work admitted
//	}
//	wait := bucket.Until(4) // how long until 4 tokens conform
//
// # HTTP Middleware
//
//	limiter, _ := flowfence.New(
//	    flowfence.WithDefaults(10.0, 100),
//	    flowfence.WithKeyExtractor(flowfence.ExtractIPWithProxy()),
//	)
//
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// The middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and, on 429
// responses, X-RateLimit-Reset and Retry-After.
//
// # Configuration
//
// Policies load from YAML, with per-route overrides:
//
//	defaults:
//	  info_rate: 10.0
//	  burst_size: 100
//	  enabled: true
//
//	policies:
//	  "/api/login":
//	    info_rate: 0.083  # ~5 req/min sustained
//	    burst_size: 5
//	    enabled: true
//
//	key_extractor: "ip"
//	cleanup_age: "1h"
//
//	limiter, err := flowfence.New(flowfence.WithConfigFile("config.yaml"))
//
// Routes with their own policy get their own bucket space: a client's budget
// on /api/login is independent of its budget elsewhere.
//
// # Persistence
//
// Bucket state is a flat four-field snapshot (rate, burst, level, last
// check). With a snapshot store attached, budgets survive restarts:
//
//	snaps, err := store.NewRedisStore(store.RedisConfig{Addr: "localhost:6379"})
//	limiter, err := flowfence.New(
//	    flowfence.WithDefaults(10.0, 100),
//	    flowfence.WithSnapshots(snaps),
//	)
//	defer limiter.Persist() // export live buckets on shutdown
//
// Evicted buckets are exported automatically; a key seen again later resumes
// from its snapshot instead of starting over with a full bucket.
//
// # Key Extraction
//
// Clients can be identified several ways:
//
//	flowfence.ExtractIP()                  // connection address
//	flowfence.ExtractIPWithProxy()         // X-Forwarded-For / X-Real-IP aware
//	flowfence.ExtractHeader("X-API-Key")   // header value
//	flowfence.ExtractBearer()              // SHA-256 fingerprint of the bearer token
//	flowfence.ExtractCookie("session_id")  // cookie value
//	flowfence.ExtractStatic("global")      // one shared bucket
//	flowfence.ExtractComposite(...)        // first extractor that succeeds
//
// # Concurrency
//
// The core bucket arithmetic (package core) is deliberately unsynchronized;
// Bucket wraps it with a mutex so check-and-consume is one atomic step, and
// the in-memory store guards its map with an RWMutex. Everything exported
// from this package is safe for concurrent use.
//
// # Cleanup
//
// Idle buckets are evicted after cleanup_age so the key space cannot grow
// without bound:
//
//	stop := limiter.StartBackgroundCleanup()
//	defer stop()
package flowfence
