package v1

import (
	"github.com/gin-gonic/gin"

	"medstock/internal/infrastructure/http/v1/handlers"
	"medstock/internal/infrastructure/http/v1/middleware"
	"medstock/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Consumption posts consumption and serves its read views
	Consumption handlers.ConsumptionService

	// Views caches read views; nil disables caching
	Views handlers.ViewCache

	// Idempotency guards consumption POSTs; nil disables X-Idempotency-Key handling
	Idempotency middleware.IdempotencyStore

	// HealthChecks run on /health/ready
	HealthChecks []handlers.HealthCheck
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks...)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	{
		handler := handlers.NewConsumptionHandler(handlers.NewBaseHandler(), cfg.Consumption, cfg.Views)
		encounters := v1.Group("/encounters/:encounterId")
		if cfg.Idempotency != nil {
			encounters.Use(middleware.Idempotency(cfg.Idempotency))
		}
		RegisterEncounterRoutes(encounters, handler)
		RegisterStockRoutes(v1.Group("/stock"), handler)
	}

	return router
}
