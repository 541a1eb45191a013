package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskboard/backend/internal/cache"
	"taskboard/backend/internal/config"
	"taskboard/backend/internal/database"
	"taskboard/backend/internal/handlers"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/monitoring"
	"taskboard/backend/internal/observability"
	"taskboard/backend/internal/router"

	"github.com/joho/godotenv"
)

const redisCheckTimeout = 2 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config_invalid", "err", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Server.Environment, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry.ServiceName, handlers.APIVersion, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			logger.Warn("tracer_shutdown_failed", "err", err)
		}
	}()

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.AutoMigrate(); err != nil {
		return err
	}
	logger.Info("database_ready", "stats", pool.Stats())

	metrics := monitoring.NewMetrics(nil)
	sqlDB, err := pool.DB.DB()
	if err != nil {
		return err
	}
	metrics.RegisterDB(sqlDB, cfg.Database.Driver)

	taskCache := newTaskCache(ctx, cfg, logger)
	if taskCache != nil {
		defer taskCache.Close()
	}

	var authLimiter, ipLimiter, apiLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		authLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		ipLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		apiLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		router.RunLimiterCleanup(ctx, cfg.RateLimit.CleanupInterval, authLimiter, ipLimiter, apiLimiter)
	}

	engine := router.New(router.Deps{
		Config:      cfg,
		Pool:        pool,
		Cache:       taskCache,
		Logger:      logger,
		Metrics:     metrics,
		AuthLimiter: authLimiter,
		IPLimiter:   ipLimiter,
		APILimiter:  apiLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "addr", srv.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down", "timeout", cfg.Server.ShutdownTimeout.String())
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	logger.Info("shutdown_complete")
	return nil
}

// newTaskCache returns nil when caching is disabled. An unreachable Redis
// at startup leaves the cache running on process memory only.
func newTaskCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cache.MultiLevelCache {
	if !cfg.Cache.Enabled {
		logger.Info("cache_disabled")
		return nil
	}

	opts := cache.Options{
		L1MaxTTL: cfg.Cache.L1MaxTTL,
		Breaker:  cache.CircuitBreakerConfigFrom(cfg),
	}

	redisCache := cache.NewRedisCache(cache.RedisConfigFrom(cfg))
	pctx, cancel := context.WithTimeout(ctx, redisCheckTimeout)
	defer cancel()
	if err := redisCache.Health(pctx); err != nil {
		logger.Warn("redis_unavailable", "addr", cfg.GetRedisAddr(), "err", err)
		_ = redisCache.Close()
		return cache.NewMultiLevelCache(nil, opts)
	}

	logger.Info("redis_connected", "addr", cfg.GetRedisAddr())
	return cache.NewMultiLevelCache(redisCache, opts)
}
