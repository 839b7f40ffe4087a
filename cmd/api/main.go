package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mzabaleta/routefit/internal/adapters/http"
	natsadapter "github.com/mzabaleta/routefit/internal/adapters/nats"
	"github.com/mzabaleta/routefit/internal/adapters/osrm"
	"github.com/mzabaleta/routefit/internal/adapters/postgres"
	"github.com/mzabaleta/routefit/internal/adapters/valkey"
	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
	"github.com/mzabaleta/routefit/internal/core/usecases"
	"github.com/mzabaleta/routefit/internal/pkg/config"
	"github.com/mzabaleta/routefit/internal/pkg/logging"
	"github.com/mzabaleta/routefit/internal/pkg/metrics"
	"github.com/mzabaleta/routefit/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("routefit-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("routefit-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(ctx, cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS publisher: narration events, spoken instructions, position mirror
	var narrator ports.Narrator
	var events ports.EventPublisher
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer publisher.Close()
		narrator = publisher
		events = publisher
	}

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Directions provider
	provider := osrm.NewClient(
		cfg.Routing.OSRMURL,
		time.Duration(cfg.Routing.TimeoutSeconds)*time.Second,
		slog.Default(),
	)

	// Repos
	shapeRepo := postgres.NewShapeRepo(db)

	// Use cases
	shapeSvc := usecases.NewShapeService(shapeRepo, cacheSvc)
	reductionSvc := usecases.NewReductionService(usecases.ReductionConfig{
		MinSpacingMeters: cfg.Routing.MinSpacing,
		TurnThresholdDeg: cfg.Routing.TurnThreshold,
		MaxRunMeters:     cfg.Routing.MaxRun,
		ResampleInterval: cfg.Routing.ResampleEvery,
	})
	resolverSvc := usecases.NewResolverService(provider, cacheSvc)
	fittingSvc := usecases.NewFittingService(resolverSvc, usecases.DefaultFittingConfig())
	placementSvc := usecases.NewPlacementService(usecases.DefaultPlacementConfig())
	narrationSvc := usecases.NewNarrationService(resolverSvc, narrator, events)

	// Durable position consumer: fixes replayed through JetStream reach the
	// same session the WebSocket feeds directly.
	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats position subscriber unavailable", "error", err)
	} else {
		defer subscriber.Close()
		err := subscriber.SubscribePositions(ctx, func(ctx context.Context, fix *domain.PositionFix) error {
			narrationSvc.FeedPosition(ctx, fix)
			return nil
		})
		if err != nil {
			slog.Warn("position subscription failed", "error", err)
		}
	}

	deps := &http.Dependencies{
		Shapes:    shapeSvc,
		Reduction: reductionSvc,
		Resolver:  resolverSvc,
		Fitting:   fittingSvc,
		Placement: placementSvc,
		Narration: narrationSvc,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // drawn shapes can carry thousands of points
		AppName:      "RouteFit API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.routefit.app",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Pool gauges refresh on a slow tick
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
