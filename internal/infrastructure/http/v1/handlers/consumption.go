package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"medstock/internal/core/apperror"
	"medstock/internal/core/audit"
	appctx "medstock/internal/core/context"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/domain/consumption"
	"medstock/internal/domain/registers/stock"
	"medstock/internal/infrastructure/http/v1/dto"
	"medstock/pkg/logger"
)

// ConsumptionService is the subset of consumption.Service used over HTTP.
type ConsumptionService interface {
	ConsumeSingle(ctx context.Context, req consumption.SingleRequest) (*consumption.Result, error)
	ConsumeBulk(ctx context.Context, req consumption.BulkRequest) (*consumption.Result, error)
	DraftInvoice(ctx context.Context, encounterID string) (*invoice.Invoice, error)
	StockLevel(ctx context.Context, productID, locationID string) (*stock.Level, error)
	InvoiceHistory(ctx context.Context, encounterID string, limit int) ([]audit.Record, error)
}

// ViewCache caches read views per tenant and company.
type ViewCache interface {
	BuildKey(ctx context.Context, tenantID, companyID, view string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// ConsumptionHandler handles consumption postings and their read views.
type ConsumptionHandler struct {
	*BaseHandler
	service ConsumptionService
	views   ViewCache
}

// NewConsumptionHandler creates a new consumption handler. views may be nil.
func NewConsumptionHandler(base *BaseHandler, service ConsumptionService, views ViewCache) *ConsumptionHandler {
	return &ConsumptionHandler{
		BaseHandler: base,
		service:     service,
		views:       views,
	}
}

// Consume handles POST /encounters/:encounterId/consumptions
func (h *ConsumptionHandler) Consume(c *gin.Context) {
	var req dto.ConsumeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	encounterID, ok := h.encounterID(c, req.EncounterID)
	if !ok {
		return
	}

	result, err := h.service.ConsumeSingle(c.Request.Context(), req.ToDomain(encounterID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromConsumptionResult(result))
}

// ConsumeBulk handles POST /encounters/:encounterId/consumptions/bulk
func (h *ConsumptionHandler) ConsumeBulk(c *gin.Context) {
	var req dto.BulkConsumeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	encounterID, ok := h.encounterID(c, req.EncounterID)
	if !ok {
		return
	}

	result, err := h.service.ConsumeBulk(c.Request.Context(), req.ToDomain(encounterID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromConsumptionResult(result))
}

// GetInvoice handles GET /encounters/:encounterId/invoice
func (h *ConsumptionHandler) GetInvoice(c *gin.Context) {
	encounterID := c.Param("encounterId")

	resp, err := cachedView(c.Request.Context(), h.views, consumption.ViewBillingList, []string{"invoice", encounterID},
		func(ctx context.Context) (dto.InvoiceResponse, error) {
			inv, err := h.service.DraftInvoice(ctx, encounterID)
			if err != nil {
				return dto.InvoiceResponse{}, err
			}
			return dto.FromInvoice(inv), nil
		})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, resp)
}

// GetInvoiceAudit handles GET /encounters/:encounterId/invoice/audit?limit=
func (h *ConsumptionHandler) GetInvoiceAudit(c *gin.Context) {
	var q dto.AuditQuery
	if !h.BindQuery(c, &q) {
		return
	}

	records, err := h.service.InvoiceHistory(c.Request.Context(), c.Param("encounterId"), q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAuditRecords(records))
}

// GetStockLevel handles GET /stock/levels?productId=&locationId=
func (h *ConsumptionHandler) GetStockLevel(c *gin.Context) {
	var q dto.StockLevelQuery
	if !h.BindQuery(c, &q) {
		return
	}

	resp, err := cachedView(c.Request.Context(), h.views, consumption.ViewInventoryUsage, []string{"level", q.ProductID, q.LocationID},
		func(ctx context.Context) (dto.StockLevelResponse, error) {
			lvl, err := h.service.StockLevel(ctx, q.ProductID, q.LocationID)
			if err != nil {
				return dto.StockLevelResponse{}, err
			}
			return dto.FromStockLevel(lvl), nil
		})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, resp)
}

// encounterID resolves the encounter from the path, rejecting a conflicting body value.
func (h *ConsumptionHandler) encounterID(c *gin.Context, fromBody string) (string, bool) {
	fromPath := c.Param("encounterId")
	if fromBody != "" && fromPath != "" && fromBody != fromPath {
		h.Error(c, apperror.NewValidation("encounterId in body does not match path").
			WithDetail("field", "encounterId"))
		return "", false
	}
	if fromPath != "" {
		return fromPath, true
	}
	return fromBody, true
}

// cachedView serves a read view from the cache, loading on miss.
// Without a cache or session the loader runs directly.
func cachedView[T any](
	ctx context.Context,
	views ViewCache,
	view string,
	parts []string,
	loader func(context.Context) (T, error),
) (T, error) {
	user := appctx.GetUser(ctx)
	if views == nil || user == nil {
		return loader(ctx)
	}

	key, err := views.BuildKey(ctx, user.TenantID, user.CompanyID, view, parts...)
	if err != nil {
		logger.Warn(ctx, "view cache key failed", "view", view, "error", err)
		return loader(ctx)
	}

	var out T
	err = views.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	return out, err
}
