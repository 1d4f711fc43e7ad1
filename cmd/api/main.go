// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"airwatch/internal/adapter/providers"
	"airwatch/internal/adapter/storage"
	"airwatch/internal/config"
	"airwatch/internal/domain/collection"
	"airwatch/internal/scheduler"
	"airwatch/internal/server"
	"airwatch/internal/service/bundle"
	"airwatch/internal/service/cache"
	"airwatch/internal/service/collector"
	"airwatch/internal/service/freshness"
	"airwatch/internal/service/geo"
	"airwatch/internal/service/interest"
)

func main() {
	// Load .env when present; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Close()

	// Initialize storage adapters
	signalStore := storage.NewSignalStore(db)
	collectionStore := storage.NewCollectionStore(db)

	// Initialize interest services
	aggregator := interest.NewAggregator(
		signalStore,
		interest.StepBuckets{},
		natsConn,
		interest.AggregatorConfig{EventsTopic: cfg.Collection.EventsTopic},
		logger,
	)
	scorer := interest.NewScorer(signalStore, logger)

	// Initialize freshness evaluation
	evaluator := freshness.NewEvaluator(
		freshness.NewCoarseResolver(),
		signalStore,
		freshness.Config{
			BaseInterval:     cfg.Collection.BaseInterval,
			MinAlertInterval: cfg.Collection.MinAlertInterval,
		},
		logger,
	)

	// Initialize geospatial deduplication
	dedup := geo.NewDeduplicator(
		signalStore,
		geo.Config{
			LookupRadiusKm: cfg.Geo.LookupRadiusKm,
			GroupRadiusKm:  cfg.Geo.GroupRadiusKm,
		},
		logger,
	)

	// Initialize collector backends
	httpClient := &http.Client{Timeout: cfg.Providers.RequestTimeout}
	airnow := providers.NewAirNowBackend(httpClient, cfg.Providers)
	openmeteo := providers.NewOpenMeteoBackend(httpClient, cfg.Providers)
	firms := providers.NewFIRMSBackend(httpClient, cfg.Providers)

	orchestrator := collector.NewOrchestrator(
		map[string]collection.Backend{
			collector.RegionNorthAmerica: airnow,
			collector.RegionGlobal:       openmeteo,
		},
		map[collection.Category]collection.Backend{
			collection.CategoryForecast: openmeteo,
			collection.CategoryFire:     firms,
		},
		collector.NewBoxClassifier(),
		collectionStore,
		natsConn,
		collector.Config{EventsTopic: cfg.Collection.EventsTopic},
		logger,
	)

	// Initialize tiered cache with background sweeper
	caches := cache.NewTiered(cache.Config{
		BundleTTL:     cfg.Cache.BundleTTL,
		TrendTTL:      cfg.Cache.TrendTTL,
		DirectoryTTL:  cfg.Cache.DirectoryTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, logger)
	caches.Start(ctx)

	// Initialize bundle manager
	bundles := bundle.NewManager(
		collectionStore,
		orchestrator,
		evaluator,
		dedup,
		caches,
		bundle.Config{
			CollectTimeout: cfg.Collection.CollectTimeout,
			LookupRadiusKm: cfg.Geo.LookupRadiusKm,
		},
		logger,
	)

	// Initialize batch scheduler
	batch := scheduler.New(
		scorer,
		evaluator,
		orchestrator,
		scheduler.Config{
			BatchInterval:  cfg.Collection.BatchInterval,
			BatchLimit:     cfg.Collection.BatchLimit,
			MaxConcurrent:  cfg.Collection.MaxConcurrent,
			CollectTimeout: cfg.Collection.CollectTimeout,
		},
		logger,
	)
	if err := batch.Start(); err != nil {
		logger.Fatal("Failed to start batch scheduler", zap.Error(err))
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, bundles, aggregator, scorer)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	logger.Info("Shutting down services...")

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop background workers
	batch.Stop()
	caches.Stop()

	logger.Info("Shutdown complete")
}

// Initialize structured logging
func initLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
