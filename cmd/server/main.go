package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledger-dashboard/internal/adapter"
	"github.com/ledger-dashboard/internal/api"
	"github.com/ledger-dashboard/internal/config"
	"github.com/ledger-dashboard/internal/events"
	"github.com/ledger-dashboard/internal/job"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/metrics"
	"github.com/ledger-dashboard/internal/service"
	"github.com/ledger-dashboard/internal/storage"
)

func main() {
	fmt.Println("Ledger Dashboard API Server")
	fmt.Println("===========================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	defer logger.Sync()

	logger.Info("Starting Ledger Dashboard API Server")
	metrics.MustRegisterMetrics()

	ctx := context.Background()

	// Initialize Postgres
	logger.Info("Connecting to Postgres...")
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if os.Getenv("AUTO_MIGRATE") == "true" {
		if err := storage.RunMigrations(storage.DatabaseURL(&cfg.Database.Postgres), "migrations/postgres"); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
		logger.Info("Migrations applied")
	}

	health := map[string]api.Pinger{"postgres": postgres}

	// Redis is optional; without it every read goes to Postgres.
	var cacheService *storage.CacheService
	if cfg.Database.Redis.Enabled() {
		logger.Info("Connecting to Redis...")
		redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
		cacheService = storage.NewCacheService(redisCache, cfg.Cache.TTL)
		health["redis"] = redisCache
	} else {
		logger.Warn("REDIS_HOST not set, caching disabled")
	}

	// Repositories
	walletRepo := storage.NewWalletRepository(postgres)
	txRepo := storage.NewTransactionRepository(postgres)
	apiKeyRepo := storage.NewAPIKeyRepository(postgres)

	// Optional collaborators stay nil interfaces when unconfigured.
	var (
		archiver  job.Archiver
		artifacts api.ArtifactArchive
		publisher job.Publisher
		quoter    service.NativeQuoter
	)

	if cfg.Archive.Enabled() {
		archive, err := storage.NewMinIOArchive(ctx, &cfg.Archive)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize artifact archive")
		}
		archiver = archive
		artifacts = archive
		logger.WithField("bucket", cfg.Archive.Bucket).Info("Artifact archive enabled")
	}

	if cfg.Events.Enabled() {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close event publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.WithField("topic", cfg.Events.Topic).Info("Import events enabled")
	}

	nativeQuoter, err := adapter.NewNativeQuoterFromConfig(&cfg.Quote)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize native quoter")
	}
	if nativeQuoter != nil {
		defer nativeQuoter.Close()
		quoter = nativeQuoter
	} else {
		logger.Info("No RPC endpoints configured, dashboard uses ledger-derived balances")
	}

	// Services
	logger.Info("Initializing services...")

	var ledgerCache job.CacheInvalidator
	if cacheService != nil {
		ledgerCache = cacheService
	}

	orchestrator := job.NewOrchestrator(job.Deps{
		Wallets:     walletRepo,
		Credentials: apiKeyRepo,
		Ledger:      txRepo,
		Runner:      job.NewExecRunner(cfg.Import.FetcherBin),
		Explorer:    cfg.Explorer,
		WorkDir:     cfg.Import.WorkDir,
		Archive:     archiver,
		Events:      publisher,
		Cache:       ledgerCache,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go orchestrator.RunSweeper(sweepCtx, cfg.Import.SweepInterval, cfg.Import.Retention)

	services := api.Services{
		Imports:   orchestrator,
		Query:     service.NewQueryService(txRepo, cacheService),
		Analytics: service.NewAnalyticsService(txRepo, walletRepo, quoter, cacheService),
		Wallets:   service.NewWalletService(walletRepo, cacheService),
		APIKeys:   service.NewAPIKeyService(apiKeyRepo),
		Export:    service.NewExportService(txRepo),
		Reprocess: service.NewReprocessService(walletRepo, txRepo, artifacts, cacheService, cfg.Import.WorkDir),
		Archive:   artifacts,
		Health:    health,
	}

	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, services)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	stopSweeper()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Imports cancelled during shutdown")
	}

	logger.Info("Server exited")
}
