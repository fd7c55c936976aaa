package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"listing-sync/internal/api"
	"listing-sync/internal/archive"
	"listing-sync/internal/config"
	"listing-sync/internal/mirror"
	"listing-sync/internal/observer"
	"listing-sync/internal/ratelimit"
	"listing-sync/internal/store"
)

func main() {
	cfg := config.Load()

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	logger := zlog.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalw("connect postgres", "error", err)
	}
	defer st.Close()

	// Writes arriving before this finishes are skipped as not-ready; the
	// engine tolerates the startup race by design.
	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatalw("migrations", "error", err)
	}

	opts := observer.Options{
		StallInterval:    cfg.StallInterval,
		StallThreshold:   cfg.StallThreshold,
		RecalcInterval:   cfg.RecalcInterval,
		ActiveJobsWindow: cfg.ActiveJobsWindow,
	}

	var limiter *ratelimit.Limiter
	if cfg.MirrorEnabled || cfg.RateLimitEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if cfg.MirrorEnabled {
			opts.Mirror = mirror.NewRedisMirrorWithClient(redisClient, cfg.MirrorTTL)
		}
		if cfg.RateLimitEnabled {
			limiter = ratelimit.NewLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill)
		}
	}

	switch {
	case cfg.ArchiveS3Bucket != "":
		exporter, err := archive.NewS3Exporter(ctx, st, cfg.ArchiveS3Bucket, os.Getenv("AWS_REGION"))
		if err != nil {
			logger.Fatalw("init s3 archiver", "error", err)
		}
		opts.Archiver = exporter
	case cfg.ArchiveDir != "":
		opts.Archiver = archive.NewLocalExporter(st, cfg.ArchiveDir)
	}

	obs := observer.New(st, logger, opts)
	go obs.Run(ctx)

	server := api.New(cfg, obs, limiter, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Infow("monitord listening", "port", cfg.HTTPPort, "env", cfg.Env)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("listen", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	obs.Flush()
}
