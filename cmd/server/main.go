package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/yourusername/flowfence/api"
	"github.com/yourusername/flowfence/metrics"
	"github.com/yourusername/flowfence/pkg/flowfence"
	"github.com/yourusername/flowfence/store"
)

func main() {
	// Configuration
	port := getEnv("PORT", "8080")
	redisAddr := getEnv("REDIS_ADDR", "")
	infoRate := getEnvFloat("INFO_RATE", 10)
	burstSize := getEnvFloat("BURST_SIZE", 100)

	// Choose storage backend
	var storage store.Store
	if redisAddr != "" {
		redisStore, err := store.NewRedisStore(store.RedisConfig{
			Addr:     redisAddr,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
			TTL:      5 * time.Minute,
		})
		if err != nil {
			log.Fatal("❌ Failed to connect to Redis: ", err)
		}
		fmt.Println("✅ Connected to Redis at", redisAddr)
		storage = redisStore
	} else {
		fmt.Println("⚠️  Using in-memory storage (not suitable for production)")
		storage = store.NewMemoryStore()
	}

	// Default rate limit policy
	defaultPolicy := flowfence.BucketConfig{
		InfoRate:  infoRate,
		BurstSize: burstSize,
	}

	// Create metrics tracker
	metricsTracker := metrics.NewMetrics()

	// Create handlers
	handler := api.NewHandler(storage, defaultPolicy, metricsTracker)
	statsHandler := api.NewStatsHandler(metricsTracker)

	// Routes
	http.HandleFunc("/check", handler.CheckRateLimit)
	http.Handle("/stats", statsHandler)
	http.Handle("/metrics", metricsTracker.Handler())
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/dashboard", dashboardHandler)
	http.HandleFunc("/", rootHandler)

	// Start server
	addr := ":" + port
	fmt.Println("🚦 FlowFence Rate Limiting Service")
	fmt.Printf("📈 Default policy: %.1f tokens/sec, burst up to %.0f\n", infoRate, burstSize)
	fmt.Println("📍 Listening on http://localhost" + addr)
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  POST /check       - Check if a request is allowed")
	fmt.Println("  GET  /stats       - View stats (JSON)")
	fmt.Println("  GET  /metrics     - Prometheus metrics")
	fmt.Println("  GET  /dashboard   - View dashboard (HTML)")
	fmt.Println("  GET  /health      - Health check")
	fmt.Println()
	fmt.Println("📊 Dashboard: http://localhost" + addr + "/dashboard")
	fmt.Println()

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "flowfence",
		"version": "1.0.0",
	})
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": "FlowFence Rate Limiting Service",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /check":  "Check if a request is allowed",
			"GET /stats":   "Stats snapshot (JSON)",
			"GET /metrics": "Prometheus metrics",
			"GET /health":  "Health check",
		},
		"docs": "https://github.com/yourusername/flowfence",
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("⚠️  Ignoring %s=%q: %v", key, value, err)
		return defaultValue
	}
	return f
}
