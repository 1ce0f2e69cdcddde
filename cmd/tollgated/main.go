package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tollgate-io/tollgate/internal/telemetry"
	"github.com/tollgate-io/tollgate/pkg/tollgate"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := tollgate.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger at the configured verbosity
	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer("tollgate", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	rt, err := tollgate.New(
		tollgate.WithConfig(cfg),
		tollgate.WithRoutes(routes()),
		tollgate.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("Failed to start runtime: %v", err)
	}

	logger.Info("Runtime started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping runtime...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Runtime shutdown complete")
}

// configPath picks the config file: $TOLLGATE_CONFIG wins, otherwise
// config.yaml when present, otherwise empty (defaults plus environment).
func configPath() string {
	if path := os.Getenv("TOLLGATE_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// routes builds the demo route tree served by the standalone binary.
// Embedders supply their own tree through tollgate.WithRoutes.
func routes() tollgate.Tree {
	return tollgate.Tree{
		"/": tollgate.Sync(func(ctx context.Context, req *tollgate.Request) (*tollgate.Envelope, error) {
			return (&tollgate.Envelope{OK: true, Msg: "tollgate up"}).
				Set("args", req.Args), nil
		}),
		"echo": tollgate.Sync(func(ctx context.Context, req *tollgate.Request) (*tollgate.Envelope, error) {
			return (&tollgate.Envelope{OK: true}).
				Set("method", req.Method).
				Set("args", req.Args).
				Set("body", req.Body), nil
		}),
		"time": tollgate.Async(func(ctx context.Context, req *tollgate.Request, cb tollgate.Callback) {
			cb(nil, (&tollgate.Envelope{OK: true}).
				Set("now", time.Now().UTC().Format(time.RFC3339)), nil)
		}),
	}
}
