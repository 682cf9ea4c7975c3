package catalog_repo

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"medstock/internal/core/id"
	"medstock/internal/domain/catalogs/product"
	"medstock/internal/infrastructure/storage/postgres"
)

const (
	productsTable      = "products"
	productPricesTable = "product_prices"
)

// ProductRepo implements product.Repository.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
	prices *BaseCatalogRepo[*product.PriceEntry]
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			productsTable,
			postgres.ExtractDBColumns[product.Product](),
			func() *product.Product { return &product.Product{} },
		),
		prices: NewBaseCatalogRepo(
			txManager,
			productPricesTable,
			postgres.ExtractDBColumns[product.PriceEntry](),
			func() *product.PriceEntry { return &product.PriceEntry{} },
		),
	}
}

func (r *ProductRepo) byIDQuery(companyID, productID id.ID) squirrel.SelectBuilder {
	return r.baseSelect().Where(squirrel.Eq{"id": productID, "company_id": companyID})
}

// GetByID returns the product scoped to the company.
func (r *ProductRepo) GetByID(ctx context.Context, companyID, productID id.ID) (*product.Product, error) {
	return r.FindOne(ctx, r.byIDQuery(companyID, productID), productID)
}

func (r *ProductRepo) latestPriceQuery(productID id.ID, asOf time.Time) squirrel.SelectBuilder {
	return r.prices.baseSelect().
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.LtOrEq{"effective_from": asOf}).
		OrderBy("effective_from DESC", "id DESC")
}

// LatestPrice returns the newest price effective at asOf.
func (r *ProductRepo) LatestPrice(ctx context.Context, productID id.ID, asOf time.Time) (*product.PriceEntry, error) {
	return r.prices.FindOne(ctx, r.latestPriceQuery(productID, asOf), productID)
}
