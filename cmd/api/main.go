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

	"talentpool-backend/internal/bootstrap"
	"talentpool-backend/internal/pools"
	"talentpool-backend/internal/shared/config"
	"talentpool-backend/internal/shared/server"
	"talentpool-backend/internal/shared/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	go app.Outbox.Run(ctx, cfg.OutboxFlushInterval)
	go sweepExpired(ctx, app.Engine, cfg.ExpirySweepInterval)

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting API server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	// Drain effects committed while requests were finishing.
	if _, err := app.Outbox.Flush(shutdownCtx); err != nil {
		log.Printf("final outbox flush: %v", err)
	}
}

type overdueExpirer interface {
	ExpireOverdue(ctx context.Context) ([]int64, error)
}

var _ overdueExpirer = (*pools.Engine)(nil)

// sweepExpired releases stakes of active pools whose deadline has passed.
func sweepExpired(ctx context.Context, engine overdueExpirer, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := engine.ExpireOverdue(ctx)
			if err != nil {
				telemetry.Error("expiry.sweep_failed", map[string]any{"error": err.Error()})
				continue
			}
			if len(expired) > 0 {
				telemetry.Info("expiry.sweep", map[string]any{"expired": expired})
			}
		}
	}
}
