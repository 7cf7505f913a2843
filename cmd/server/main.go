// Package main is the entry point for the map tracker server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightquark/maptracker/internal/api"
	"github.com/lightquark/maptracker/internal/config"
	"github.com/lightquark/maptracker/internal/database"
	"github.com/lightquark/maptracker/internal/middleware"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/provider"
	"github.com/lightquark/maptracker/internal/repository"
	"github.com/lightquark/maptracker/internal/service"
	"github.com/lightquark/maptracker/internal/store"
	"github.com/lightquark/maptracker/internal/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// trackingProvider is a location provider that also accepts pushed samples
type trackingProvider interface {
	subscription.Provider
	provider.Dispatcher
}

func main() {
	configPath := flag.String("config", os.Getenv("MAPTRACKER_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Config{Path: cfg.DBPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	storeMetrics := store.NewMetrics()
	if err := storeMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register store metrics: %w", err)
	}
	subscriptionMetrics := subscription.NewMetrics()
	if err := subscriptionMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register subscription metrics: %w", err)
	}

	granted, err := permission.ParseCapabilities(cfg.Grants)
	if err != nil {
		return err
	}
	grants := permission.NewGrants(granted...)

	locationProvider, closeProvider, err := newProvider(cfg, grants, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	locationStore := store.New(repository.NewLocationRepository(db), store.Config{
		Logger:  logger,
		Metrics: storeMetrics,
	})

	trackingService, err := service.NewTrackingService(service.Config{
		Store:               locationStore,
		Provider:            locationProvider,
		Oracle:              grants,
		TargetAddress:       cfg.TargetAddress,
		Logger:              logger,
		SubscriptionMetrics: subscriptionMetrics,
	})
	if err != nil {
		locationStore.Close()
		return err
	}

	var verifier *middleware.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = middleware.NewTokenVerifier(cfg.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(ctx, cfg.RateLimit, cfg.RateWindow)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.Dependencies{
		TrackingService: trackingService,
		Dispatcher:      locationProvider,
		Grants:          grants,
		Verifier:        verifier,
		RateLimiter:     limiter,
		Gatherer:        reg,
		Logger:          logger,
	})

	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Port, "provider", cfg.Provider, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			trackingService.Close(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := trackingService.Close(shutdownCtx); err != nil {
		logger.Error("tracking service did not close cleanly", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func newProvider(cfg *config.Config, oracle permission.Oracle, logger *slog.Logger) (trackingProvider, func(), error) {
	switch cfg.Provider {
	case config.ProviderSimulator:
		sim, err := provider.NewSimulator(provider.SimulatorConfig{
			Oracle:    oracle,
			OriginLat: cfg.SimulatorLat,
			OriginLon: cfg.SimulatorLon,
			SpeedMPS:  cfg.SimulatorSpeed,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return sim, sim.Close, nil
	default:
		return provider.NewRegistry(logger), func() {}, nil
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
