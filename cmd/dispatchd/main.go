// Command dispatchd runs the HTTP front end for the dispatch library.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaylabs/dispatch"
	"github.com/relaylabs/dispatch/internal/logging"
	"github.com/relaylabs/dispatch/internal/version"
)

func main() {
	cfgPath := os.Getenv("DISPATCH_CONFIG")
	if cfgPath == "" {
		log.Fatal("DISPATCH_CONFIG must point to a config file (JSON or YAML)")
	}
	cfg, err := dispatch.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	d, err := dispatch.New(*cfg)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}
	defer func() { _ = d.Close() }()
	log.Printf("Dispatcher ready: %d provider(s): %v", len(d.Providers()), d.Providers())

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(d),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("dispatchd %s listening on %s", version.Short(), addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// newRouter builds the HTTP router.
func newRouter(d *dispatch.Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/generate", handleGenerate(d))
	r.Get("/v1/providers/health", handleProviderHealth(d))
	r.Get("/v1/providers/status", handleProviderStatus(d))
	r.Get("/v1/failovers", handleFailovers(d))
	r.Get("/v1/usage", handleUsage(d))

	return r
}
