package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chargelog/internal/amqp"
	"chargelog/internal/backend"
	"chargelog/internal/config"
	"chargelog/internal/geocode"
	"chargelog/internal/services"
	"chargelog/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting geocode-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger)
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize ledger backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}()
	}

	resolver := geocode.NewHTTPResolver(cfg.GeocodeBaseURL, "chargelog/1.0")
	geocoder := geocode.NewCache(resolver, geocode.Config{
		Country:     cfg.GeocodeCountry,
		MinInterval: cfg.GeocodeMinInterval,
		Concurrency: cfg.GeocodeConcurrency,
	})

	sessions := services.NewSessionService(result.Ledger, geocoder, nil, services.Options{
		SnapshotTTL:     cfg.SnapshotTTL,
		ShrinkTolerance: cfg.ReplaceShrinkTolerance,
	})

	geocodeWorker := worker.NewGeocodeWorker(sessions, geocoder)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// On startup, resolve anything missed while the worker was down
	logger.Info("Performing startup sweep...")
	if err := geocodeWorker.StartupSweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
		// Don't exit - continue with normal operation
	}

	// Consume resolve messages if AMQP is configured
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.ConsumeLocationResolve(ctx, geocodeWorker.HandleResolveMessage); err != nil {
				if err != context.Canceled {
					logger.Error("Message consumption failed", "error", err)
				}
				cancel()
			}
		}()
	} else {
		logger.Info("AMQP disabled - relying on periodic sweep only")
	}

	// Periodic sweep catches rows added while messages were lost
	go geocodeWorker.RunPeriodicSweep(ctx, cfg.SweepInterval)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()

	// Give worker time to finish current operations
	logger.Info("Shutting down worker...")
	time.Sleep(5 * time.Second)
	logger.Info("Worker shutdown complete")
}
