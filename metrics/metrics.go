// Package metrics tracks rate limit check outcomes on two surfaces: an
// in-process snapshot serving the JSON /stats endpoint, and Prometheus
// collectors serving /metrics.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks rate limiting statistics.
type Metrics struct {
	totalChecks     atomic.Int64
	conformedChecks atomic.Int64
	rejectedChecks  atomic.Int64

	// Per-client stats
	mu             sync.RWMutex
	clientStats    map[string]*ClientStats
	tokensConsumed float64
	startTime      time.Time

	registry    *prometheus.Registry
	checksTotal *prometheus.CounterVec
	tokensTotal prometheus.Counter
	waitSeconds prometheus.Histogram
}

// ClientStats tracks statistics for a specific client.
type ClientStats struct {
	ClientID       string    `json:"client_id"`
	Checks         int64     `json:"checks"`
	Conformed      int64     `json:"conformed"`
	Rejected       int64     `json:"rejected"`
	TokensConsumed float64   `json:"tokens_consumed"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// NewMetrics creates a metrics tracker with its own Prometheus registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	checksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowfence_checks_total",
		Help: "Rate limit checks by outcome (conformed or rejected).",
	}, []string{"outcome"})

	tokensTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowfence_tokens_consumed_total",
		Help: "Tokens consumed by conforming checks.",
	})

	waitSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowfence_wait_seconds",
		Help:    "Predicted wait until a rejected check would conform.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	registry.MustRegister(checksTotal, tokensTotal, waitSeconds)

	return &Metrics{
		clientStats: make(map[string]*ClientStats),
		startTime:   time.Now(),
		registry:    registry,
		checksTotal: checksTotal,
		tokensTotal: tokensTotal,
		waitSeconds: waitSeconds,
	}
}

// RecordCheck records one rate limit check. tokens is the amount consumed
// when the check conformed; wait is the predicted delay until a rejected
// check would conform.
func (m *Metrics) RecordCheck(clientID string, conformed bool, tokens float64, wait time.Duration) {
	m.totalChecks.Add(1)

	if conformed {
		m.conformedChecks.Add(1)
		m.checksTotal.WithLabelValues("conformed").Inc()
		m.tokensTotal.Add(tokens)
	} else {
		m.rejectedChecks.Add(1)
		m.checksTotal.WithLabelValues("rejected").Inc()
		m.waitSeconds.Observe(wait.Seconds())
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.clientStats[clientID]
	if !exists {
		stats = &ClientStats{
			ClientID:  clientID,
			FirstSeen: now,
		}
		m.clientStats[clientID] = stats
	}

	stats.Checks++
	if conformed {
		stats.Conformed++
		stats.TokensConsumed += tokens
		m.tokensConsumed += tokens
	} else {
		stats.Rejected++
	}
	stats.LastSeen = now
}

// GetSnapshot returns a point-in-time view of current metrics.
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topClients := make([]*ClientStats, 0, len(m.clientStats))
	for _, stats := range m.clientStats {
		clone := *stats
		topClients = append(topClients, &clone)
	}

	sort.Slice(topClients, func(i, j int) bool {
		return topClients[i].Checks > topClients[j].Checks
	})
	if len(topClients) > 10 {
		topClients = topClients[:10]
	}

	uptime := time.Since(m.startTime)

	return &Snapshot{
		TotalChecks:     m.totalChecks.Load(),
		ConformedChecks: m.conformedChecks.Load(),
		RejectedChecks:  m.rejectedChecks.Load(),
		TokensConsumed:  m.tokensConsumed,
		UniqueClients:   int64(len(m.clientStats)),
		TopClients:      topClients,
		UptimeSeconds:   int64(uptime.Seconds()),
		StartTime:       m.startTime,
	}
}

// Handler returns the Prometheus exposition handler for this tracker's
// registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	TotalChecks     int64          `json:"total_checks"`
	ConformedChecks int64          `json:"conformed_checks"`
	RejectedChecks  int64          `json:"rejected_checks"`
	TokensConsumed  float64        `json:"tokens_consumed"`
	UniqueClients   int64          `json:"unique_clients"`
	TopClients      []*ClientStats `json:"top_clients"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	StartTime       time.Time      `json:"start_time"`
}
