package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"medstock/internal/core/id"
	"medstock/internal/domain/inventory/location"
	"medstock/internal/infrastructure/storage/postgres"
)

const stockLocationTable = "stock_location"

// LocationRepo implements location.Repository.
type LocationRepo struct {
	*BaseCatalogRepo[*location.Location]
}

var _ location.Repository = (*LocationRepo)(nil)

// NewLocationRepo creates a new stock location repository.
func NewLocationRepo(txManager *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			stockLocationTable,
			postgres.ExtractDBColumns[location.Location](),
			func() *location.Location { return &location.Location{} },
		),
	}
}

func (r *LocationRepo) preferredQuery(companyID id.ID) squirrel.SelectBuilder {
	return r.baseSelect().
		Where(squirrel.Eq{"company_id": companyID}).
		Where(squirrel.Or{
			squirrel.Eq{"code": location.DefaultCode},
			squirrel.Eq{"location_type": location.TypeWarehouse},
		}).
		OrderBy("(code = '"+location.DefaultCode+"') DESC", "created_at", "id")
}

// FindPreferred returns WH-MAIN or the oldest warehouse of the company.
func (r *LocationRepo) FindPreferred(ctx context.Context, companyID id.ID) (*location.Location, error) {
	return r.FindOne(ctx, r.preferredQuery(companyID), companyID)
}

func (r *LocationRepo) anyQuery(companyID id.ID) squirrel.SelectBuilder {
	return r.baseSelect().
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("created_at", "id")
}

// FindAny returns the oldest location of the company.
func (r *LocationRepo) FindAny(ctx context.Context, companyID id.ID) (*location.Location, error) {
	return r.FindOne(ctx, r.anyQuery(companyID), companyID)
}

// CreateIfAbsent relies on the unique (company_id, code) index so concurrent
// first-use requests converge on one row.
func (r *LocationRepo) CreateIfAbsent(ctx context.Context, loc *location.Location) (bool, error) {
	return r.InsertIgnoringConflict(ctx, loc, "company_id, code")
}
