package flowfence

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/yourusername/flowfence/store"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"default limiter", nil, false},
		{"with defaults option", []Option{WithDefaults(10.0, 100)}, false},
		{"with config option", []Option{WithConfig(NewConfig())}, false},
		{"with key extractor", []Option{WithKeyExtractor(ExtractIPWithProxy())}, false},
		{
			"multiple options",
			[]Option{
				WithDefaults(5.0, 50),
				WithKeyExtractor(ExtractIP()),
				WithCleanupAge(30 * time.Minute),
			},
			false,
		},
		{"invalid defaults (zero rate)", []Option{WithDefaults(0, 100)}, true},
		{"invalid defaults (zero burst)", []Option{WithDefaults(10.0, 0)}, true},
		{"nil config", []Option{WithConfig(nil)}, true},
		{"nil key extractor", []Option{WithKeyExtractor(nil)}, true},
		{"nil snapshot store", []Option{WithSnapshots(nil)}, true},
		{"negative cleanup interval", []Option{WithCleanupInterval(-1 * time.Minute)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := New(tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Error("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("New() unexpected error: %v", err)
				return
			}
			if limiter == nil {
				t.Fatal("New() returned nil limiter")
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, err := New(WithDefaults(1.0, 3))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow("testkey")
		if err != nil {
			t.Fatalf("Allow() unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if decision.Limit != 3 {
			t.Errorf("decision.Limit = %v, want 3", decision.Limit)
		}
		if decision.Key != "testkey" {
			t.Errorf("decision.Key = %s, want testkey", decision.Key)
		}
	}

	decision, err := limiter.Allow("testkey")
	if err != nil {
		t.Fatalf("Allow() unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Error("4th request should be denied")
	}
	if decision.RetryAfter == 0 {
		t.Error("decision.RetryAfter should be > 0 when denied")
	}
}

func TestRateLimiter_AllowN(t *testing.T) {
	limiter, err := New(WithDefaults(1.0, 10))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	decision, err := limiter.AllowN("heavy-client", 7.5)
	if err != nil {
		t.Fatalf("AllowN() unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Error("AllowN(7.5) should be allowed against burst 10")
	}

	// 2.5 tokens left: another 7.5 does not conform
	decision, _ = limiter.AllowN("heavy-client", 7.5)
	if decision.Allowed {
		t.Error("second AllowN(7.5) should be denied")
	}
	if decision.RetryAfter < 4*time.Second {
		t.Errorf("RetryAfter = %v, want ~5s ((7.5-2.5)/1.0)", decision.RetryAfter)
	}
}

func TestRateLimiter_Allow_EmptyKey(t *testing.T) {
	limiter, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := limiter.Allow(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Allow(\"\") error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestRateLimiter_Allow_DifferentKeys(t *testing.T) {
	limiter, err := New(WithDefaults(1.0, 2))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	limiter.Allow("key1")
	limiter.Allow("key1")

	decision, _ := limiter.Allow("key1")
	if decision.Allowed {
		t.Error("key1 should be exhausted")
	}

	decision, _ = limiter.Allow("key2")
	if !decision.Allowed {
		t.Error("key2 should have tokens (separate bucket)")
	}
}

func TestRateLimiter_AllowRequest(t *testing.T) {
	limiter, err := New(
		WithDefaults(1.0, 5),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	decision, err := limiter.AllowRequest(req)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Error("first request should be allowed")
	}
	if decision.Route != "/api/test" {
		t.Errorf("decision.Route = %s, want /api/test", decision.Route)
	}
	if decision.Key == "" {
		t.Error("decision.Key should not be empty")
	}
}

func TestRateLimiter_AllowRequest_RoutePolicy(t *testing.T) {
	config := NewConfig()
	config.Defaults = PolicyConfig{InfoRate: 1.0, BurstSize: 100, Enabled: true}
	config.Policies["/api/login"] = PolicyConfig{InfoRate: 1.0, BurstSize: 2, Enabled: true}

	limiter, err := New(
		WithConfig(config),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	login := httptest.NewRequest("POST", "/api/login", nil)
	login.RemoteAddr = "192.168.1.1:12345"
	other := httptest.NewRequest("GET", "/api/search", nil)
	other.RemoteAddr = "192.168.1.1:12345"

	// Drain the strict login policy
	for i := 0; i < 2; i++ {
		decision, err := limiter.AllowRequest(login)
		if err != nil {
			t.Fatalf("AllowRequest() failed: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("login request %d should be allowed", i+1)
		}
		if decision.Limit != 2 {
			t.Errorf("login decision.Limit = %v, want 2 (route policy)", decision.Limit)
		}
	}

	decision, _ := limiter.AllowRequest(login)
	if decision.Allowed {
		t.Error("3rd login should be denied by the route policy")
	}

	// The same client still has budget on routes under the default policy
	decision, err = limiter.AllowRequest(other)
	if err != nil {
		t.Fatalf("AllowRequest() failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("search request should be allowed (independent default bucket)")
	}
	if decision.Limit != 100 {
		t.Errorf("search decision.Limit = %v, want 100 (defaults)", decision.Limit)
	}
}

func TestRateLimiter_AllowRequest_DisabledPolicy(t *testing.T) {
	config := NewConfig()
	config.Policies["/api/unlimited"] = PolicyConfig{
		InfoRate:  10.0,
		BurstSize: 100,
		Enabled:   false,
	}

	limiter, err := New(
		WithConfig(config),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/unlimited", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	for i := 0; i < 200; i++ {
		decision, err := limiter.AllowRequest(req)
		if err != nil {
			t.Fatalf("AllowRequest() unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("request %d should be allowed (limiting disabled)", i+1)
		}
	}
}

func TestRateLimiter_AllowRequest_KeyExtractionFailed(t *testing.T) {
	limiter, err := New(WithKeyExtractor(ExtractHeader("X-API-Key")))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/test", nil)

	if _, err := limiter.AllowRequest(req); !errors.Is(err, ErrKeyExtractionFailed) {
		t.Errorf("AllowRequest() error = %v, want %v", err, ErrKeyExtractionFailed)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter, err := New(
		WithDefaults(1.0, 2),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	makeRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/test", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	// Burst passes with headers set
	for i := 0; i < 2; i++ {
		w := makeRequest()
		if w.Code != http.StatusOK {
			t.Errorf("request %d status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("X-RateLimit-Limit = %q, want \"2\"", w.Header().Get("X-RateLimit-Limit"))
		}
	}

	// Over the burst: 429 with retry guidance
	w := makeRequest()
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set on 429")
	}

	resetHeader := w.Header().Get("X-RateLimit-Reset")
	if resetHeader == "" {
		t.Fatal("X-RateLimit-Reset header should be set on 429")
	}
	resetTime, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		t.Fatalf("X-RateLimit-Reset parsing failed: %v", err)
	}
	if resetTime < time.Now().Unix() {
		t.Error("X-RateLimit-Reset should not be in the past")
	}
}

func TestRateLimiter_Middleware_ExactHeaders(t *testing.T) {
	limiter, err := New(
		WithDefaults(1.0, 5),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-RateLimit-Limit") != "5" {
		t.Errorf("X-RateLimit-Limit = %s, want 5", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Errorf("X-RateLimit-Remaining = %s, want 4", w.Header().Get("X-RateLimit-Remaining"))
	}
	// Retry-After is only for rejections
	if w.Header().Get("Retry-After") != "" {
		t.Error("Retry-After should not be set for allowed requests")
	}
}

func TestRateLimiter_Middleware_ExtractionFailure(t *testing.T) {
	limiter, err := New(WithKeyExtractor(ExtractHeader("X-API-Key")))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// No API key on the request: the limiter cannot attribute it
	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d (missing API key)", w.Code, http.StatusInternalServerError)
	}
}

func TestRateLimiter_Middleware_RoutesShareDefaultBucket(t *testing.T) {
	limiter, err := New(
		WithDefaults(1.0, 5),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Without per-route policies, one client draws on one bucket no matter
	// the path
	for _, route := range []string{"/api/users", "/api/posts", "/api/comments"} {
		req := httptest.NewRequest("GET", route, nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("request to %s should be allowed, got status %d", route, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/api/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("X-RateLimit-Remaining = %s, want 1 (shared bucket)", w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiter_SnapshotsAcrossInstances(t *testing.T) {
	snaps := store.NewMemoryStore()

	limiter1, err := New(
		WithDefaults(1.0, 10),
		WithSnapshots(snaps),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// Spend most of the budget, then persist as a shutdown would
	for i := 0; i < 8; i++ {
		limiter1.Allow("returning-client")
	}
	n, err := limiter1.Persist()
	if err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Persist() = %d, want 1", n)
	}

	// A second limiter sharing the snapshot store sees the spent budget
	limiter2, err := New(
		WithDefaults(1.0, 10),
		WithSnapshots(snaps),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	allowed := 0
	for i := 0; i < 10; i++ {
		decision, err := limiter2.Allow("returning-client")
		if err != nil {
			t.Fatalf("Allow() failed: %v", err)
		}
		if decision.Allowed {
			allowed++
		}
	}
	if allowed > 3 {
		t.Errorf("restored client got %d of 10 through, want <= 3 (budget carried over)", allowed)
	}

	// A brand new key still starts with the full burst
	decision, _ := limiter2.Allow("new-client")
	if !decision.Allowed {
		t.Error("new client should start with a full bucket")
	}
}

func TestRateLimiter_SnapshotsRequireInMemoryStore(t *testing.T) {
	custom, _ := NewInMemoryStore(BucketConfig{InfoRate: 1, BurstSize: 10}, time.Hour)

	// In-memory store works
	if _, err := New(WithStore(custom), WithSnapshots(store.NewMemoryStore())); err != nil {
		t.Errorf("New() with in-memory store and snapshots failed: %v", err)
	}

	// Any other store does not
	if _, err := New(WithStore(fakeStore{}), WithSnapshots(store.NewMemoryStore())); err == nil {
		t.Error("New() should reject snapshots on a store without persistence support")
	}
}

// fakeStore is a minimal BucketStore for option validation tests.
type fakeStore struct{}

func (fakeStore) GetBucket(key string) (*Bucket, error) { return NewBucket(1, 1) }
func (fakeStore) Cleanup() (int, error)                 { return 0, nil }
func (fakeStore) Count() int                            { return 0 }
func (fakeStore) Persist() (int, error)                 { return 0, nil }

func TestRateLimiter_StartBackgroundCleanup(t *testing.T) {
	s, err := NewInMemoryStore(BucketConfig{InfoRate: 1.0, BurstSize: 10}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewInMemoryStore() failed: %v", err)
	}

	limiter, err := New(
		WithStore(s),
		WithCleanupAge(50*time.Millisecond),
		WithCleanupInterval(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	limiter.Allow("key1")
	limiter.Allow("key2")

	if s.Count() != 2 {
		t.Fatalf("expected 2 buckets, got %d", s.Count())
	}

	stop := limiter.StartBackgroundCleanup()
	defer stop()

	time.Sleep(200 * time.Millisecond)

	if s.Count() != 0 {
		t.Errorf("expected 0 buckets after cleanup, got %d", s.Count())
	}
}

func TestWithConfigFile_Missing(t *testing.T) {
	if _, err := New(WithConfigFile("nonexistent.yaml")); err == nil {
		t.Error("New() expected error for nonexistent config file, got nil")
	}
}
