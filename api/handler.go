package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yourusername/flowfence/core"
	"github.com/yourusername/flowfence/pkg/flowfence"
	"github.com/yourusername/flowfence/store"
)

// Handler handles rate limit check requests
type Handler struct {
	store         store.Store
	defaultPolicy flowfence.BucketConfig
	metrics       MetricsRecorder
}

// MetricsRecorder defines the interface for recording check outcomes.
// tokens is the amount consumed when the check conformed; wait is the
// predicted delay until a rejected check would conform.
type MetricsRecorder interface {
	RecordCheck(clientID string, conformed bool, tokens float64, wait time.Duration)
}

// NewHandler creates a new API handler. metrics may be nil.
func NewHandler(store store.Store, defaultPolicy flowfence.BucketConfig, metrics MetricsRecorder) *Handler {
	return &Handler{
		store:         store,
		defaultPolicy: defaultPolicy,
		metrics:       metrics,
	}
}

// CheckRequest represents the incoming rate limit check request
type CheckRequest struct {
	ClientID  string   `json:"client_id"`            // Required: unique identifier (user ID, API key, IP)
	Tokens    *float64 `json:"tokens,omitempty"`     // Optional: tokens to consume, default 1
	InfoRate  *float64 `json:"info_rate,omitempty"`  // Optional: override default rate
	BurstSize *float64 `json:"burst_size,omitempty"` // Optional: override default burst
}

// CheckResponse represents the rate limit check response
type CheckResponse struct {
	Allowed      bool    `json:"allowed"`                  // Whether the work is allowed
	Remaining    float64 `json:"remaining"`                // Tokens remaining
	Limit        float64 `json:"limit"`                    // Burst ceiling
	RetryAfterMs int64   `json:"retry_after_ms,omitempty"` // Milliseconds until retry (if blocked)
	ResetAt      int64   `json:"reset_at"`                 // Unix timestamp when the bucket is full again
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CheckRateLimit handles POST /check requests. Unknown clients start with a
// full bucket; state round-trips through the handler's store so budgets
// survive restarts when the store is durable.
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.ClientID == "" {
		h.sendError(w, http.StatusBadRequest, "missing_client_id", "client_id is required")
		return
	}

	cost := 1.0
	if req.Tokens != nil {
		cost = *req.Tokens
		if cost <= 0 {
			h.sendError(w, http.StatusBadRequest, "invalid_tokens", "tokens must be positive")
			return
		}
	}

	// Per-request policy overrides, e.g. premium tiers
	policy := h.defaultPolicy
	if req.InfoRate != nil {
		policy.InfoRate = *req.InfoRate
	}
	if req.BurstSize != nil {
		policy.BurstSize = *req.BurstSize
	}
	if policy.InfoRate <= 0 {
		h.sendError(w, http.StatusBadRequest, "invalid_info_rate", "info_rate must be positive")
		return
	}
	if policy.BurstSize <= 0 {
		h.sendError(w, http.StatusBadRequest, "invalid_burst_size", "burst_size must be positive")
		return
	}

	// Seed from the stored level and checkpoint; policy comes from the
	// request or the handler's default, never from the snapshot.
	seed := core.State{
		InfoRate:  policy.InfoRate,
		BurstSize: policy.BurstSize,
		Tokens:    policy.BurstSize,
		LastCheck: core.SystemClock(),
	}
	if st := h.store.Get(req.ClientID); st != nil {
		seed.Tokens = st.Tokens
		seed.LastCheck = st.LastCheck
	}

	bucket, err := core.Restore(seed)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "internal_error", "Failed to evaluate rate limit")
		return
	}

	var wait time.Duration
	conformed := bucket.Conforms(cost)
	if conformed {
		bucket.Consume(cost)
	} else {
		wait = bucket.Until(cost)
	}

	newState := bucket.State()
	h.store.Set(req.ClientID, &newState)

	if h.metrics != nil {
		h.metrics.RecordCheck(req.ClientID, conformed, cost, wait)
	}

	// When the bucket will be full again
	secondsToFull := (policy.BurstSize - newState.Tokens) / policy.InfoRate
	resetAt := time.Now().Add(time.Duration(secondsToFull * float64(time.Second))).Unix()

	response := CheckResponse{
		Allowed:      conformed,
		Remaining:    newState.Tokens,
		Limit:        policy.BurstSize,
		RetryAfterMs: wait.Milliseconds(),
		ResetAt:      resetAt,
	}

	statusCode := http.StatusOK
	if !conformed {
		statusCode = http.StatusTooManyRequests
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
