package flowfence

import (
	"sync"
	"time"

	"github.com/yourusername/flowfence/core"
)

// Bucket is the concurrency wrapper around core.TokenBucket: one mutex, one
// bucket. The core does no locking of its own, so every method here holds the
// mutex across the whole reconcile-and-operate sequence, making each call a
// single atomic step even under concurrent use.
type Bucket struct {
	mu sync.Mutex
	tb *core.TokenBucket
}

// NewBucket creates a bucket for one client. Unlike the bare core, it starts
// full: a client seen for the first time gets its initial burst instead of
// waiting for accrual. infoRate is tokens per second, burstSize the ceiling.
func NewBucket(infoRate, burstSize float64) (*Bucket, error) {
	tb, err := core.Restore(core.State{
		InfoRate:  infoRate,
		BurstSize: burstSize,
		Tokens:    burstSize,
		LastCheck: core.SystemClock(),
	})
	if err != nil {
		return nil, err
	}
	return &Bucket{tb: tb}, nil
}

// RestoreBucket resumes a bucket from an exported snapshot, typically one
// persisted by a previous process. The snapshot's own policy applies, not the
// store's default.
func RestoreBucket(st core.State) (*Bucket, error) {
	tb, err := core.Restore(st)
	if err != nil {
		return nil, err
	}
	return &Bucket{tb: tb}, nil
}

// Allow attempts to consume one token. Returns true if the request conforms.
func (b *Bucket) Allow() bool {
	return b.AllowN(1)
}

// AllowN attempts to consume n tokens, consuming only when all n are
// available. Check and debit happen under one lock, so two racing callers can
// never both spend the same tokens. n <= 0 is allowed without consuming.
func (b *Bucket) AllowN(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 {
		return true
	}
	if !b.tb.Conforms(n) {
		return false
	}
	b.tb.Consume(n)
	return true
}

// Conforms reports whether n tokens are available without consuming any.
func (b *Bucket) Conforms(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tb.Conforms(n)
}

// Consume debits n tokens unconditionally, flooring at zero.
func (b *Bucket) Consume(n float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tb.Consume(n)
}

// Until reports how long until n tokens will be available, 0 if they already
// are.
func (b *Bucket) Until(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tb.Until(n)
}

// Tokens returns the current level. The value is a snapshot and may change
// immediately under concurrent access.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tb.Tokens()
}

// InfoRate returns the configured rate in tokens per second. Policy fields
// are immutable, so no lock is needed.
func (b *Bucket) InfoRate() float64 {
	return b.tb.InfoRate()
}

// BurstSize returns the configured burst ceiling.
func (b *Bucket) BurstSize() float64 {
	return b.tb.BurstSize()
}

// State exports the bucket's persistent fields for handoff or persistence.
func (b *Bucket) State() core.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tb.State()
}
