package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prudhvinik1/retailpulse/internal/cache"
	"github.com/prudhvinik1/retailpulse/internal/clock"
	"github.com/prudhvinik1/retailpulse/internal/config"
	"github.com/prudhvinik1/retailpulse/internal/database"
	"github.com/prudhvinik1/retailpulse/internal/handlers"
	"github.com/prudhvinik1/retailpulse/internal/logger"
	"github.com/prudhvinik1/retailpulse/internal/metrics"
	"github.com/prudhvinik1/retailpulse/internal/repositories"
	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"github.com/prudhvinik1/retailpulse/internal/scheduler"
	"github.com/prudhvinik1/retailpulse/internal/services"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(logger.Options{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	client := retailcrm.NewClient(retailcrm.Config{
		BaseURL:  cfg.RetailCRMURL,
		APIKey:   cfg.RetailCRMAPIKey,
		Timeout:  cfg.RetailCRMTimeout,
		PageSize: cfg.RetailCRMPageSize,
	}, m, zl.Named("retailcrm"))
	zl.Info("retailcrm client configured",
		zap.String("url", cfg.RetailCRMURL),
		zap.String("api_key", logger.MaskAPIKey(cfg.RetailCRMAPIKey)),
		zap.String("timezone", cfg.RetailCRMTimezone.String()),
	)

	checks := map[string]handlers.HealthCheck{}

	// Result cache and sync lock: Redis when configured, otherwise in-process
	var (
		store    cache.Store = cache.NewMemoryStore(clock.SystemClock{})
		syncLock repositories.SyncLock
	)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, zl)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redisClient.Close()

		store = cache.NewRedisStore(redisClient)
		syncLock = repositories.NewRedisSyncLock(redisClient, repositories.DefaultSyncLockTTL)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Mirror and sync: only with a database
	var (
		mirror      repositories.MirrorRepository
		syncService *services.SyncService
		syncer      handlers.Syncer
		features    = []string{"analytics", "result_cache"}
	)
	if cfg.MirrorEnabled() {
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, zl)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}

		mirror = repositories.NewPostgresMirrorRepository(pool)
		syncService = services.NewSyncService(client, mirror, repositories.NewPostgresWatermarkRepository(pool), services.SyncConfig{
			Location: cfg.RetailCRMTimezone,
			Lock:     syncLock,
			Metrics:  m,
			Logger:   zl.Named("sync"),
		})
		syncer = syncService
		features = append(features, "database_mirror", "incremental_sync")
		checks["postgres"] = pool.Ping
	} else {
		zl.Warn("DATABASE_URL not set; analytics will always query the CRM API")
	}

	analytics := services.NewAnalyticsService(client, mirror, store, services.AnalyticsConfig{
		CacheTTL: cfg.CacheTTL,
		Metrics:  m,
		Logger:   zl.Named("analytics"),
	})
	tools := handlers.NewToolsHandler(analytics, syncer, services.NewCRMService(client, zl.Named("crm")), zl.Named("tools"))

	routerCfg := handlers.RouterConfig{
		Tools:    tools,
		Checks:   checks,
		Gatherer: registry,
		Features: features,
		Logger:   zl.Named("http"),
	}
	if cfg.AuthEnabled() {
		routerCfg.Auth = services.NewAuthService(cfg.ClientID, cfg.ClientSecretHash, cfg.JWTSecret, cfg.JWTExpiry, nil)
		zl.Info("bearer auth enabled for /tools", zap.String("client_id", cfg.ClientID))
	}

	// Scheduled sync
	if cfg.SyncSchedule != "" && syncService != nil {
		runner := scheduler.New(ctx, zl.Named("cron"))
		if _, err := runner.Add("sync_all", cfg.SyncSchedule, func(ctx context.Context) error {
			_, err := syncService.SyncAll(ctx)
			if errors.Is(err, services.ErrSyncInProgress) {
				return nil
			}
			return err
		}); err != nil {
			return fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", cfg.SyncSchedule, err)
		}
		runner.Start()
		defer runner.Stop()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handlers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	go func() {
		<-ctx.Done()
		zl.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Error("server shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("starting server", zap.String("port", cfg.ServerPort), zap.Strings("features", features))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	zl.Info("server stopped gracefully")
	return nil
}
