package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/vendor-orchestration/internal/config"
	"github.com/jcmexdev/vendor-orchestration/internal/pkg/telemetry"
	"github.com/jcmexdev/vendor-orchestration/internal/simulator"
)

func main() {
	cfg := config.LoadSimulator()
	telemetry.InitLogger(cfg.LogLevel)
	for _, w := range cfg.Warnings {
		slog.Warn("configuration value ignored", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := telemetry.SetupTracer(ctx, cfg.OTelServiceName, telemetry.WithEndpoint(cfg.OTelEndpoint))
		if err != nil {
			slog.Error("failed to initialise tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	sim := simulator.New(cfg.Vendor)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           sim.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vendor simulator running",
			"addr", cfg.Addr,
			"failure_rate", cfg.Vendor.FailureRate,
			"async_payments", cfg.Vendor.AsyncPayments,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if err := sim.Shutdown(shutdownCtx); err != nil {
		slog.Error("pending callbacks abandoned", "error", err)
	}
	slog.Info("vendor simulator stopped")
}
