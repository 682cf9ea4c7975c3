// Package main is the entry point for the medstock API server.
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

	"golang.org/x/sync/errgroup"

	"medstock/internal/config"
	"medstock/internal/domain/auth"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/domain/catalogs/product"
	"medstock/internal/domain/consumption"
	"medstock/internal/domain/inventory/location"
	"medstock/internal/domain/registers/stock"
	"medstock/internal/infrastructure/cache"
	v1 "medstock/internal/infrastructure/http/v1"
	"medstock/internal/infrastructure/http/v1/handlers"
	"medstock/internal/infrastructure/numerator"
	"medstock/internal/infrastructure/storage/postgres"
	"medstock/internal/infrastructure/storage/postgres/billing_repo"
	"medstock/internal/infrastructure/storage/postgres/catalog_repo"
	"medstock/internal/infrastructure/storage/postgres/register_repo"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting medstock server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:               cfg.DatabaseURL,
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnLifetime:   cfg.DBMaxConnLife,
		MaxConnIdleTime:   cfg.DBMaxConnIdle,
		HealthCheckPeriod: cfg.DBHealthCheck,
	})
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- View cache ---
	// Without Redis the service still posts; reads go straight to the database.
	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		log.Warnw("redis unavailable, view cache disabled", "addr", cfg.RedisAddr, "error", err)
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
	}
	views := cache.NewViewCache(redisClient, cfg.ViewCacheTTL)

	// --- Domain ---
	productRepo := catalog_repo.NewProductRepo(txManager)
	products := product.NewCatalog(productRepo)
	prices := product.NewPriceResolver(productRepo)
	stockRepo := register_repo.NewStockRepo(txManager)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit", "error", err)
	}

	consumptionService := consumption.NewService(consumption.Dependencies{
		TxManager: txManager,
		Locations: location.NewResolver(catalog_repo.NewLocationRepo(txManager)),
		Products:  products,
		Ledger:    stock.NewLedgerWriter(stockRepo),
		Levels:    stock.NewLevelAggregator(stockRepo),
		Invoices: invoice.NewDraftUpserter(
			billing_repo.NewInvoiceRepo(txManager),
			products,
			prices,
			numerator.NewFromTxManager(txManager),
			invoice.DraftUpserterConfig{Currency: cfg.InvoiceCurrency},
		),
		Events:  postgres.NewOutboxPublisher(txManager),
		Audit:   auditService,
		History: auditService,
		Views:   views,
	}, consumption.Config{
		Isolation:        cfg.Isolation(),
		StatementTimeout: cfg.StatementTimeout,
		MaxRetries:       cfg.ConsumptionMaxRetries,
	})

	// --- Router ---
	healthChecks := []handlers.HealthCheck{
		{Name: "database", Check: txManager.Ping},
	}
	if redisClient != nil {
		healthChecks = append(healthChecks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret)),
		Consumption:  consumptionService,
		Views:        views,
		Idempotency:  postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL),
		HealthChecks: healthChecks,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				postgres.LogPoolStats(gctx, pool.Pool)
				logger.Info(gctx, "price fallbacks", "zero_price_fallbacks", prices.ZeroPriceFallbacks())
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatalw("server stopped with error", "error", err)
	}
	log.Info("server stopped")
}
