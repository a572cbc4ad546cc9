package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docrecon-backend/internal/bootstrap"
	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/server"
	"docrecon-backend/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown requested, draining for up to %s", shutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// Open loops stop here; their batches resume via POST /batches/:id/reconcile.
	if err := app.Runner.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("api.runner_shutdown_incomplete", map[string]any{"error": err.Error()})
	}
}
