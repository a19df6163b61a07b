package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/flowfence/cmd/demo/handlers"
	"github.com/yourusername/flowfence/pkg/flowfence"
	"github.com/yourusername/flowfence/store"
)

func main() {
	// Command-line flags
	port := flag.String("port", "8080", "Port to run the server on")
	configFile := flag.String("config", "cmd/demo/config.yaml", "Path to configuration file")
	redisAddr := flag.String("redis", "", "Redis address for bucket snapshots (optional)")
	flag.Parse()

	// Print banner
	printBanner()

	// Initialize rate limiter
	log.Println("Loading configuration from:", *configFile)
	opts := []flowfence.Option{
		flowfence.WithConfigFile(*configFile),
	}

	persistOnExit := false
	if *redisAddr != "" {
		snapshots, err := store.NewRedisStore(store.RedisConfig{
			Addr: *redisAddr,
			TTL:  30 * time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Println("Bucket snapshots stored in Redis at", *redisAddr)
		opts = append(opts, flowfence.WithSnapshots(snapshots))
		persistOnExit = true
	}

	limiter, err := flowfence.New(opts...)
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}

	// Start background cleanup
	stopCleanup := limiter.StartBackgroundCleanup()
	defer stopCleanup()

	log.Println("Rate limiter initialized successfully")
	log.Println("Background cleanup started")

	// Create HTTP mux
	mux := http.NewServeMux()

	// Health check endpoint (no rate limiting)
	mux.HandleFunc("/health", handlers.Health)

	// API endpoints with rate limiting
	mux.Handle("/api/search", limiter.Middleware(http.HandlerFunc(handlers.Search)))
	mux.Handle("/api/create", limiter.Middleware(http.HandlerFunc(handlers.Create)))
	mux.Handle("/api/login", limiter.Middleware(http.HandlerFunc(handlers.Login)))
	mux.Handle("/api/update", limiter.Middleware(http.HandlerFunc(handlers.Update)))

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, `FlowFence Demo Server

Available endpoints:
  GET  /health       - Health check (no rate limit)
  GET  /api/search   - Search endpoint (lenient policy)
  POST /api/create   - Create resource (moderate policy)
  POST /api/login    - Login endpoint (strict policy - anti brute-force)
  PUT  /api/update   - Update resource (moderate policy)

Try it:
  curl http://localhost:%s/health
  curl http://localhost:%s/api/search?q=test
  curl -X POST http://localhost:%s/api/login

Rate limit headers:
  X-RateLimit-Limit     - Burst ceiling of the applied policy
  X-RateLimit-Remaining - Tokens left in your bucket
  X-RateLimit-Reset     - Unix timestamp when the request would conform
  Retry-After           - Seconds to wait (when rate limited)
`, *port, *port, *port)
	})

	// Start server
	addr := ":" + *port
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Printf("Starting server on http://localhost%s", addr)
		log.Println("Press Ctrl+C to stop")
		log.Println("")
		log.Println("Try these commands:")
		log.Printf("  curl http://localhost%s/health\n", *port)
		log.Printf("  curl http://localhost%s/api/search?q=golang\n", *port)
		log.Printf("  curl -X POST http://localhost%s/api/login\n", *port)
		log.Println("")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal, then persist bucket state so client budgets
	// survive the restart
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if persistOnExit {
		if n, err := limiter.Persist(); err != nil {
			log.Printf("Failed to persist buckets: %v", err)
		} else {
			log.Printf("Persisted %d bucket(s) to Redis", n)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   ███████╗██╗      ██████╗ ██╗    ██╗                 ║
║   ██╔════╝██║     ██╔═══██╗██║    ██║                 ║
║   █████╗  ██║     ██║   ██║██║ █╗ ██║                 ║
║   ██╔══╝  ██║     ██║   ██║██║███╗██║                 ║
║   ██║     ███████╗╚██████╔╝╚███╔███╔╝                 ║
║   ╚═╝     ╚══════╝ ╚═════╝  ╚══╝╚══╝                  ║
║                                                       ║
║             FENCE - Demo Server                       ║
║                                                       ║
║   Token Bucket Rate Limiting Service                  ║
║   Per-Route Policies | Go Implementation              ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
