package product

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/core/types"
	"medstock/pkg/logger"
)

// Catalog looks up products on the posting path.
type Catalog struct {
	repo Repository
}

// NewCatalog creates a new product catalog.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// Require returns the product or UNKNOWN_PRODUCT when it does not resolve in the company.
func (c *Catalog) Require(ctx context.Context, companyID, productID id.ID) (*Product, error) {
	p, err := c.repo.GetByID(ctx, companyID, productID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewUnknownProduct(productID)
		}
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

// PriceResolver returns the currently effective unit price of a product.
type PriceResolver struct {
	repo Repository
	now  func() time.Time

	zeroFallbacks atomic.Int64
}

// NewPriceResolver creates a new price resolver.
func NewPriceResolver(repo Repository) *PriceResolver {
	return &PriceResolver{repo: repo, now: time.Now}
}

// ResolveUnitPrice returns the newest price-history entry, else the base price, else zero.
// It never fails: lookup errors fall through to the next tier.
func (r *PriceResolver) ResolveUnitPrice(ctx context.Context, p *Product) types.Money {
	entry, err := r.repo.LatestPrice(ctx, p.ID, r.now())
	switch {
	case err == nil:
		return entry.Price
	case !apperror.IsNotFound(err):
		logger.Warn(ctx, "price history lookup failed, using base price",
			"product_id", p.ID,
			"error", err)
	}

	if p.BasePrice != nil {
		return *p.BasePrice
	}

	total := r.zeroFallbacks.Add(1)
	logger.Warn(ctx, "no price for product, billing at zero",
		"product_id", p.ID,
		"product_name", p.Name,
		"zero_price_fallbacks", total)
	return types.Zero()
}

// ZeroPriceFallbacks returns how many times ResolveUnitPrice fell back to zero.
func (r *PriceResolver) ZeroPriceFallbacks() int64 {
	return r.zeroFallbacks.Load()
}
