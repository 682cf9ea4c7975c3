// Package main is the entry point for the medstock outbox worker.
// It relays committed domain events from sys_outbox to Redis pub/sub and
// purges expired idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"medstock/internal/config"
	"medstock/internal/infrastructure/cache"
	"medstock/internal/infrastructure/messaging"
	"medstock/internal/infrastructure/storage/postgres"
	"medstock/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.AppEnv == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.WithComponent("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting medstock outbox worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalw("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
	}
	defer func() { _ = redisClient.Close() }()

	txManager := postgres.NewTxManager(pool)
	relay := postgres.NewOutboxRelay(
		txManager,
		cfg.OutboxBatchSize,
		messaging.NewRedisSink(redisClient, cfg.OutboxChannel),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("outbox relay running",
			"channel", cfg.OutboxChannel,
			"batch_size", cfg.OutboxBatchSize,
			"interval", cfg.OutboxPollInterval)
		return relay.Run(gctx, cfg.OutboxPollInterval)
	})

	idempotency := postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL)
	g.Go(func() error {
		ticker := time.NewTicker(cfg.IdempotencyCleanup)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := idempotency.CleanupExpired(gctx)
				if err != nil {
					logger.Warn(gctx, "idempotency cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info(gctx, "expired idempotency keys removed", "count", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("worker stopped with error", "error", err)
	}
	log.Info("worker stopped")
}
