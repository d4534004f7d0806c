// Command server runs the Heartline feed API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heartline/internal/bootstrap"
	"heartline/internal/config"
	"heartline/internal/observability"
	"heartline/internal/server"
)

const version = "1.0.0"

// @title Heartline API
// @version 1.0
// @description Feed API with optimistic like toggles

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	seedDemo := flag.Bool("seed-demo", false, "Fill an empty development database with demo data")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.GlobalLogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.Configure(cfg.Env, cfg.LogLevel)

	shutdownTracing, err := observability.InitTracing(cfg.TracingConfig("heartline-api", version))
	if err != nil {
		observability.GlobalLogger.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SeedDemo: *seedDemo})
	if err != nil {
		observability.GlobalLogger.Error("failed to initialize runtime", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.NewServerWithDeps(cfg, db, rdb)
	if err != nil {
		observability.GlobalLogger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			observability.GlobalLogger.Error("server stopped", slog.String("error", err.Error()))
		}
	case <-ctx.Done():
		observability.GlobalLogger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.GlobalLogger.Error("server resource shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		observability.GlobalLogger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
}
