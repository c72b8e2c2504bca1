package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xizzxy/quotagate/internal/config"
	"github.com/xizzxy/quotagate/internal/control"
	"github.com/xizzxy/quotagate/internal/observability"
)

func main() {
	cfg := config.LoadConfig()
	cfg.Observability.ServiceName = "quotagate-control"

	logger := observability.NewLogger(cfg.Observability.LogLevel)
	logger.Info("Starting Quotagate Control Plane",
		"version", cfg.Observability.ServiceVersion,
		"address", cfg.Control.Address,
		"etcd_endpoints", cfg.Etcd.Endpoints,
	)

	_, shutdownTracing, err := observability.InitTracing(cfg.Observability)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	server, err := control.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create control server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start control server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Control server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error", "error", err)
	}

	logger.Info("Control plane shutdown complete")
}
