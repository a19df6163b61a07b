package core

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInfoRate is returned when the information rate is zero or negative
	ErrInvalidInfoRate = errors.New("information rate must be positive")

	// ErrInvalidBurstSize is returned when the burst size is zero or negative
	ErrInvalidBurstSize = errors.New("burst size must be positive")
)

// TokenBucket meters a flow against a fixed information rate and burst size.
// Tokens accrue at infoRate per second up to burstSize; Conforms asks whether
// n tokens are available and Consume debits them. Catch-up is lazy: every
// operation first reconciles the level with the time elapsed since the
// previous call, so there are no background timers or goroutines.
//
// A TokenBucket is not safe for concurrent use. Callers sharing one across
// goroutines serialize access themselves; the flowfence.Bucket wrapper does
// exactly that with a mutex.
type TokenBucket struct {
	infoRate  float64 // Tokens added per second
	burstSize float64 // Maximum tokens (burst ceiling)
	tokens    float64 // Current level, 0 <= tokens <= burstSize
	lastCheck float64 // Clock reading at the last reconciliation
	clock     Clock
}

// Option configures a TokenBucket at construction time.
type Option func(*TokenBucket)

// WithClock replaces the time source. Tests inject a manual clock; production
// callers can supply a monotonic adapter instead of the wall clock.
func WithClock(c Clock) Option {
	return func(tb *TokenBucket) {
		if c != nil {
			tb.clock = c
		}
	}
}

// New creates a bucket that starts empty: it cannot conform to any positive
// request until tokens have accrued. infoRate is tokens per second and
// burstSize the ceiling; both must be positive.
func New(infoRate, burstSize float64, opts ...Option) (*TokenBucket, error) {
	if err := validate(infoRate, burstSize); err != nil {
		return nil, err
	}

	tb := &TokenBucket{
		infoRate:  infoRate,
		burstSize: burstSize,
		clock:     SystemClock,
	}
	for _, opt := range opts {
		opt(tb)
	}
	tb.lastCheck = tb.clock()

	return tb, nil
}

// Restore rebuilds a bucket from a previously exported State. The token level
// is clamped into [0, BurstSize] so a stale or hand-edited snapshot cannot
// escape the bucket's bounds. LastCheck is taken verbatim: a reading in the
// past is credited (up to the ceiling) on first use, a reading in the future
// suspends accrual until the clock catches up.
func Restore(st State, opts ...Option) (*TokenBucket, error) {
	if err := validate(st.InfoRate, st.BurstSize); err != nil {
		return nil, err
	}

	tb := &TokenBucket{
		infoRate:  st.InfoRate,
		burstSize: st.BurstSize,
		tokens:    st.Tokens,
		lastCheck: st.LastCheck,
		clock:     SystemClock,
	}
	for _, opt := range opts {
		opt(tb)
	}

	if tb.tokens < 0 {
		tb.tokens = 0
	}
	if tb.tokens > tb.burstSize {
		tb.tokens = tb.burstSize
	}

	return tb, nil
}

func validate(infoRate, burstSize float64) error {
	if infoRate <= 0 {
		return ErrInvalidInfoRate
	}
	if burstSize <= 0 {
		return ErrInvalidBurstSize
	}
	return nil
}

// reconcile advances the token level by the elapsed time since the last call,
// capped at the burst size. A non-positive elapsed reading (stalled or
// backwards clock) accrues nothing and leaves lastCheck untouched, so
// lastCheck never decreases.
func (tb *TokenBucket) reconcile() {
	now := tb.clock()
	elapsed := now - tb.lastCheck
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * tb.infoRate
	if tb.tokens > tb.burstSize {
		tb.tokens = tb.burstSize
	}
	tb.lastCheck = now
}

// Conforms reports whether n tokens are available right now. It consumes
// nothing. n above the burst size can never conform, no matter how long the
// bucket sits idle; n <= 0 always conforms.
func (tb *TokenBucket) Conforms(n float64) bool {
	tb.reconcile()
	return tb.tokens >= n
}

// Consume debits n tokens unconditionally, flooring the level at zero. It
// never fails: callers wanting admission control pair it with Conforms, and
// callers that accept an oversized item may debit past the level and pay for
// it out of future accrual.
func (tb *TokenBucket) Consume(n float64) {
	tb.reconcile()
	tb.tokens -= n
	if tb.tokens < 0 {
		tb.tokens = 0
	}
}

// Until predicts how long until n tokens will be available, 0 if n already
// conforms. For n above the burst size the prediction is a lower bound that
// will never be reached.
func (tb *TokenBucket) Until(n float64) time.Duration {
	tb.reconcile()
	if tb.tokens >= n {
		return 0
	}

	seconds := (n - tb.tokens) / tb.infoRate
	return time.Duration(seconds * float64(time.Second))
}

// State reconciles and exports the bucket's persistent fields. The snapshot
// is current as of the call; feeding it to Restore yields a bucket that
// behaves identically from here on.
func (tb *TokenBucket) State() State {
	tb.reconcile()
	return State{
		InfoRate:  tb.infoRate,
		BurstSize: tb.burstSize,
		Tokens:    tb.tokens,
		LastCheck: tb.lastCheck,
	}
}

// Tokens reconciles and reports the current level.
func (tb *TokenBucket) Tokens() float64 {
	tb.reconcile()
	return tb.tokens
}

// InfoRate returns the configured rate in tokens per second.
func (tb *TokenBucket) InfoRate() float64 { return tb.infoRate }

// BurstSize returns the configured burst ceiling.
func (tb *TokenBucket) BurstSize() float64 { return tb.burstSize }
