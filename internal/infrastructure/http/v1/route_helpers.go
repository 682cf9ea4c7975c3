// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// EncounterRouteHandler defines the endpoints scoped to one encounter.
type EncounterRouteHandler interface {
	Consume(c *gin.Context)
	ConsumeBulk(c *gin.Context)
	GetInvoice(c *gin.Context)
	GetInvoiceAudit(c *gin.Context)
}

// StockRouteHandler defines the stock read endpoints.
type StockRouteHandler interface {
	GetStockLevel(c *gin.Context)
}

// RegisterEncounterRoutes registers consumption and invoice routes under
// /encounters/:encounterId.
func RegisterEncounterRoutes(group *gin.RouterGroup, handler EncounterRouteHandler) {
	group.POST("/consumptions", handler.Consume)
	group.POST("/consumptions/bulk", handler.ConsumeBulk)
	group.GET("/invoice", handler.GetInvoice)
	group.GET("/invoice/audit", handler.GetInvoiceAudit)
}

// RegisterStockRoutes registers stock level routes.
func RegisterStockRoutes(group *gin.RouterGroup, handler StockRouteHandler) {
	group.GET("/levels", handler.GetStockLevel)
}
