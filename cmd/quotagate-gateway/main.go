package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xizzxy/quotagate/internal/config"
	"github.com/xizzxy/quotagate/internal/gateway"
	"github.com/xizzxy/quotagate/internal/observability"
)

func main() {
	cfg := config.LoadConfig()

	logger := observability.NewLogger(cfg.Observability.LogLevel)
	logger.Info("Starting Quotagate Gateway",
		"version", cfg.Observability.ServiceVersion,
		"consistency_mode", cfg.Gateway.ConsistencyMode,
		"failure_mode", cfg.Limits.FailureMode,
		"address", cfg.Gateway.Address,
		"grpc_address", cfg.Gateway.GRPCAddress,
	)

	_, shutdownTracing, err := observability.InitTracing(cfg.Observability)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error", "error", err)
	}

	logger.Info("Gateway shutdown complete")
}
