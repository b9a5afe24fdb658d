// Command leadfinder serves the lead search API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/lead-finder/internal/adapter/http"
	"github.com/couchcryptid/lead-finder/internal/app"
	"github.com/couchcryptid/lead-finder/internal/config"
	"github.com/couchcryptid/lead-finder/internal/observability"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Pipeline, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("close error", "error", err)
	}

	logger.Info("shutdown complete")
}
