package flowfence

import (
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/flowfence/core"
	"github.com/yourusername/flowfence/store"
)

// BucketStore is the registry of live buckets, one per client key.
// Implementations create buckets on demand with a default policy and evict
// idle ones so the key space cannot grow without bound.
type BucketStore interface {
	// GetBucket retrieves the bucket for the given key, creating it with the
	// default config if it does not exist yet.
	GetBucket(key string) (*Bucket, error)

	// Cleanup removes idle buckets. Returns the number removed.
	Cleanup() (int, error)

	// Count returns the number of live buckets.
	Count() int

	// Persist exports every live bucket to the attached snapshot store.
	// Returns the number exported; 0 when no snapshot store is attached.
	Persist() (int, error)
}

// BucketConfig holds the policy used for newly created buckets.
type BucketConfig struct {
	InfoRate  float64 // Tokens added per second
	BurstSize float64 // Maximum tokens (burst size)
}

// InMemoryStore implements BucketStore with an in-memory map. It is
// thread-safe and suits single-instance deployments. With a snapshot store
// attached (UseSnapshots), bucket state additionally survives eviction and
// process restarts: misses try a snapshot restore before creating fresh, and
// evicted buckets are exported on their way out.
type InMemoryStore struct {
	buckets     map[string]*bucketEntry
	config      BucketConfig
	mu          sync.RWMutex
	cleanupAge  time.Duration // Buckets idle longer than this are evicted
	lastCleanup time.Time
	snapshots   store.Store // nil = no persistence
}

// bucketEntry wraps a bucket with metadata for cleanup.
type bucketEntry struct {
	bucket       *Bucket
	lastAccessed time.Time
	mu           sync.Mutex // Protects lastAccessed
}

// NewInMemoryStore creates an in-memory store with the given default policy.
// cleanupAge determines how long idle buckets are kept (0 = never evict).
func NewInMemoryStore(config BucketConfig, cleanupAge time.Duration) (*InMemoryStore, error) {
	if config.InfoRate <= 0 {
		return nil, ErrInvalidInfoRate
	}
	if config.BurstSize <= 0 {
		return nil, ErrInvalidBurstSize
	}

	return &InMemoryStore{
		buckets:     make(map[string]*bucketEntry),
		config:      config,
		cleanupAge:  cleanupAge,
		lastCleanup: time.Now(),
	}, nil
}

// UseSnapshots attaches a snapshot store. Call before serving traffic; the
// store itself is not otherwise synchronized against concurrent attachment.
func (s *InMemoryStore) UseSnapshots(snapshots store.Store) {
	s.snapshots = snapshots
}

// GetBucket retrieves or creates the bucket for the given key.
func (s *InMemoryStore) GetBucket(key string) (*Bucket, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	// Fast path: bucket exists
	s.mu.RLock()
	entry, exists := s.buckets[key]
	s.mu.RUnlock()

	if exists {
		entry.touch()
		return entry.bucket, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check: another goroutine might have created it
	entry, exists = s.buckets[key]
	if exists {
		entry.touch()
		return entry.bucket, nil
	}

	bucket, err := s.newBucket(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create bucket: %v", ErrStoreFailed, err)
	}

	s.buckets[key] = &bucketEntry{
		bucket:       bucket,
		lastAccessed: time.Now(),
	}

	return bucket, nil
}

// newBucket resumes the key's persisted snapshot when one exists, otherwise
// creates a fresh full bucket with the default policy.
func (s *InMemoryStore) newBucket(key string) (*Bucket, error) {
	if s.snapshots != nil {
		if st := s.snapshots.Get(key); st != nil {
			if bucket, err := RestoreBucket(*st); err == nil {
				return bucket, nil
			}
			// Unusable snapshot (e.g. invalid policy): fall through to fresh
		}
	}
	return NewBucket(s.config.InfoRate, s.config.BurstSize)
}

// Cleanup evicts buckets that have not been accessed within cleanupAge,
// exporting each one to the snapshot store first when one is attached.
// Returns the number evicted.
func (s *InMemoryStore) Cleanup() (int, error) {
	if s.cleanupAge == 0 {
		return 0, nil // Eviction disabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.cleanupAge)
	removed := 0

	for key, entry := range s.buckets {
		entry.mu.Lock()
		lastAccessed := entry.lastAccessed
		entry.mu.Unlock()

		if lastAccessed.Before(cutoff) {
			if s.snapshots != nil {
				st := entry.bucket.State()
				s.snapshots.Set(key, &st)
			}
			delete(s.buckets, key)
			removed++
		}
	}

	s.lastCleanup = now
	return removed, nil
}

// Persist exports every live bucket to the snapshot store. Intended for
// graceful shutdown; the buckets stay live afterwards.
func (s *InMemoryStore) Persist() (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, entry := range s.buckets {
		st := entry.bucket.State()
		s.snapshots.Set(key, &st)
	}
	return len(s.buckets), nil
}

// Count returns the number of live buckets.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

// StartBackgroundCleanup runs Cleanup on the given interval until the
// returned stop function is called.
func (s *InMemoryStore) StartBackgroundCleanup(interval time.Duration) func() {
	if s.cleanupAge == 0 || interval == 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
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

func (e *bucketEntry) touch() {
	e.mu.Lock()
	e.lastAccessed = time.Now()
	e.mu.Unlock()
}

// prefixedSnapshots namespaces snapshot keys so one route's buckets stay
// separate from another's inside a shared snapshot store. Clear is
// intentionally not scoped: it clears the whole underlying store.
type prefixedSnapshots struct {
	prefix string
	inner  store.Store
}

var _ store.Store = prefixedSnapshots{}

func (p prefixedSnapshots) Get(key string) *core.State { return p.inner.Get(p.prefix + key) }

func (p prefixedSnapshots) Set(key string, st *core.State) { p.inner.Set(p.prefix+key, st) }

func (p prefixedSnapshots) Delete(key string) { p.inner.Delete(p.prefix + key) }

func (p prefixedSnapshots) Clear() { p.inner.Clear() }
