package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mangasync/database"
	"mangasync/internal/cache"
	"mangasync/internal/config"
	"mangasync/internal/ingestion/anilist"
	"mangasync/internal/ingestion/bookmarks"
	"mangasync/internal/ingestion/jikan"
	"mangasync/internal/ingestion/mal"
	"mangasync/internal/ingestion/malsync"
	"mangasync/internal/microservices/http-api/handler"
	"mangasync/internal/microservices/http-api/middleware"
	"mangasync/internal/microservices/http-api/service"
	"mangasync/internal/mirror"
	"mangasync/internal/notify"
	"mangasync/internal/reconcile"
	"mangasync/internal/syncworker"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx := context.Background()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open cache store", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Run history is optional; without postgres it lives in memory
	var recorder syncworker.Recorder = syncworker.NewMemoryRecorder()
	if cfg.CacheBackend != "memory" {
		gdb, err := database.OpenGorm(cfg, logger)
		if err != nil {
			logger.Warn("gorm connect failed, keeping sync history in memory", "error", err)
		} else {
			defer closeGorm(gdb, logger)
			gormRecorder := syncworker.NewGormRecorder(gdb)
			if err := gormRecorder.Migrate(); err != nil {
				logger.Warn("auto-migrate failed, keeping sync history in memory", "error", err)
			} else {
				recorder = gormRecorder
			}
		}
	}

	registry := syncworker.NewRegistry(recorder, logger)
	notifier := notify.NewNotifier(cfg.NotifyURL, logger)
	m := mirror.New(store, logger)

	remote := bookmarks.NewClient(cfg.RemoteBookmarksURL, cfg.RemoteAllBookmarksURL, logger)
	enricher := malsync.NewClient(
		cfg.MalSyncURL,
		jikan.NewClient(cfg.JikanURL),
		anilist.NewClient(cfg.AniListURL),
		m,
		cfg.EnrichmentEnabled,
		logger,
	)

	resyncer := syncworker.NewResyncer(registry, remote, m, notifier, logger)
	engine := reconcile.NewEngine(m, resyncer, logger)

	pusher := mal.NewClient(cfg.MalListURL, cfg.MalAccessToken, cfg.ExternalSyncMaxRetries, cfg.ExternalSyncRetryDelay, logger)
	batch := mal.NewBatchRunner(registry, pusher, enricher, m, cfg.ExternalSyncItemDelay, logger)

	fetchOpts := malsync.DefaultFetchOptions()
	fetchOpts.RetryCount = cfg.EnrichmentRetryCount
	fetchOpts.RetryDelay = cfg.EnrichmentRetryDelay

	svc := service.NewBookmarkService(remote, engine, resyncer, batch, registry, enricher, m, service.Options{
		EnrichmentEnabled:   cfg.EnrichmentEnabled,
		EnrichmentWorkers:   cfg.EnrichmentWorkers,
		EnrichmentFetchOpts: fetchOpts,
	}, logger)

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "cache_backend": cfg.CacheBackend})
	})

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	handler.NewBookmarkHandler(svc).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background syncs did not stop in time", "error", err)
	}
	notifier.Wait()

	logger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		// sole store, nothing may expire
		rs, err := cache.NewRedisStore(cfg.RedisAddr(), cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "postgres":
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		rs, err := cache.NewRedisStore(cfg.RedisAddr(), cfg.RedisPassword)
		if err != nil {
			pg.Close()
			return nil, err
		}
		ttl := time.Duration(cfg.CacheTTL) * time.Second
		return cache.NewHybridStore(rs.WithTTL(ttl), pg, logger), nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.PostgresStore, error) {
	pool, err := database.ConnectPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	pg := cache.NewPostgresStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pg, nil
}

func closeGorm(db *gorm.DB, logger *slog.Logger) {
	if err := database.CloseGorm(db); err != nil {
		logger.Warn("failed to close gorm", "error", err)
	}
}
