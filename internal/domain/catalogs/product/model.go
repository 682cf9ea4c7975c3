// Package product provides read access to billable products and their prices.
package product

import (
	"context"
	"time"

	"medstock/internal/core/id"
	"medstock/internal/core/types"
)

// Product is a stockable, billable item of a company.
type Product struct {
	ID        id.ID        `db:"id" json:"id"`
	TenantID  id.ID        `db:"tenant_id" json:"tenantId"`
	CompanyID id.ID        `db:"company_id" json:"companyId"`
	Name      string       `db:"name" json:"name"`
	UOM       string       `db:"uom" json:"uom"`
	BasePrice *types.Money `db:"base_price" json:"basePrice,omitempty"`
}

// PriceEntry is one row of a product's price history.
type PriceEntry struct {
	ID            id.ID       `db:"id" json:"id"`
	ProductID     id.ID       `db:"product_id" json:"productId"`
	Price         types.Money `db:"price" json:"price"`
	EffectiveFrom time.Time   `db:"effective_from" json:"effectiveFrom"`
}

// Repository is read-only: products and prices are maintained elsewhere.
type Repository interface {
	// GetByID returns the product within the company or apperror NotFound.
	GetByID(ctx context.Context, companyID, productID id.ID) (*Product, error)

	// LatestPrice returns the newest entry effective at asOf or apperror NotFound.
	LatestPrice(ctx context.Context, productID id.ID, asOf time.Time) (*PriceEntry, error)
}
