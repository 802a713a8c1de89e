package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meter_gateway/internal/config"
	"meter_gateway/internal/httpapi"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create router with all dependencies
	mux, deps, err := httpapi.NewRouter(cfg)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	// Periodically archive credentials that expired past the retention
	// window out of the hot table.
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go runCredentialJanitor(janitorCtx, deps, cfg.CredentialSweepInterval)

	// Create HTTP server
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Metering gateway listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	stopJanitor()

	// Drains the archive queue, then closes Redis and the database.
	deps.Shutdown()

	log.Println("Server exited")
}

// runCredentialJanitor sweeps expired credentials on a fixed interval.
// Rows expired for longer than the sweep interval are removed; the
// repository keeps every lineage chain that still ends in an unexpired
// credential, so refresh history stays reconstructable.
func runCredentialJanitor(ctx context.Context, deps *httpapi.Dependencies, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-interval)
			removed, err := deps.Credentials.DeleteExpiredBefore(ctx, cutoff)
			if err != nil {
				log.Printf("Credential sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("Credential sweep removed %d expired credentials", removed)
			}
		}
	}
}
