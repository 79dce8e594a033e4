// Package main provides the entry point for the resource-lock service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/meridian-org/casework-system/internal/api"
	"github.com/meridian-org/casework-system/internal/config"
	"github.com/meridian-org/casework-system/internal/directory"
	"github.com/meridian-org/casework-system/internal/lock"
	"github.com/meridian-org/casework-system/internal/logging"
	"github.com/meridian-org/casework-system/internal/metrics"
	"github.com/meridian-org/casework-system/internal/middleware"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.NewLogger("resource-lock-service", cfg.LogLevel)

	store, cleanup, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize lock store")
	}
	defer cleanup()

	resourceTypes := make([]lock.ResourceType, 0, len(cfg.ResourceTypes))
	for _, rt := range cfg.ResourceTypes {
		resourceTypes = append(resourceTypes, lock.ResourceType(rt))
	}

	manager := lock.NewManager(store, lock.ManagerConfig{
		DefaultTTL:        cfg.LockTTL,
		MinTTL:            cfg.MinLockTTL,
		MaxTTL:            cfg.MaxLockTTL,
		HeartbeatFraction: cfg.HeartbeatFraction,
		ResourceTypes:     resourceTypes,
	}, logger)

	// Display names come from the surrounding application's user
	// directory; the lock service falls back to raw principal ids.
	resolver := directory.NewStaticResolver(nil)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(middleware.PayloadLimit(cfg.MaxPayloadSize, logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	metrics.RegisterMetricsEndpoint(router)

	apiV1 := router.Group("/api/v1")
	lockHandler := api.NewHandler(manager, resolver, logger)
	lockHandler.RegisterRoutes(apiV1)

	var purge *lock.PurgeJob
	if cfg.PurgeInterval > 0 {
		purge = lock.NewPurgeJob(store, cfg.PurgeInterval, logger)
		purge.Start()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	if purge != nil {
		purge.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited properly")
}

// newStore selects the lock store backend: Postgres when DATABASE_URL
// is set, Redis when REDIS_URL is set, in-memory otherwise. The
// returned cleanup closes the backend connection.
func newStore(cfg *config.Config, logger zerolog.Logger) (lock.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("using PostgreSQL lock store")
		return lock.NewPostgresStore(pool), pool.Close, nil

	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		logger.Info().Msg("using Redis lock store")
		return lock.NewRedisStore(client), func() { _ = client.Close() }, nil

	default:
		logger.Warn().Msg("using in-memory lock store; locks are not shared across instances")
		return lock.NewMemoryStore(), func() {}, nil
	}
}
