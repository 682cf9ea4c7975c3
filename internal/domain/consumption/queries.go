package consumption

import (
	"context"
	"errors"

	"medstock/internal/core/audit"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/domain/registers/stock"
)

// DraftInvoice returns the current draft invoice of an encounter with all lines.
func (s *Service) DraftInvoice(ctx context.Context, encounterID string) (*invoice.Invoice, error) {
	sc, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	encID, err := parseRequired("encounterId", encounterID)
	if err != nil {
		return nil, err
	}
	return s.deps.Invoices.GetDraft(ctx, sc.CompanyID, encID)
}

// Page size bounds of InvoiceHistory.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// InvoiceHistory returns the audit trail of the encounter's draft invoice, newest first.
func (s *Service) InvoiceHistory(ctx context.Context, encounterID string, limit int) ([]audit.Record, error) {
	if s.deps.History == nil {
		return nil, errors.New("audit history is not configured")
	}
	inv, err := s.DraftInvoice(ctx, encounterID)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return s.deps.History.EntityHistory(ctx, inv.CompanyID, AggregateInvoice, inv.ID, limit)
}

// StockLevel returns the un-batched stock level of a product at a location.
func (s *Service) StockLevel(ctx context.Context, productID, locationID string) (*stock.Level, error) {
	sc, err := scopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	prodID, err := parseRequired("productId", productID)
	if err != nil {
		return nil, err
	}
	locID, err := parseRequired("locationId", locationID)
	if err != nil {
		return nil, err
	}
	return s.deps.Levels.Get(ctx, stock.LevelKey{
		TenantID:   sc.TenantID,
		CompanyID:  sc.CompanyID,
		ProductID:  prodID,
		LocationID: locID,
	})
}
