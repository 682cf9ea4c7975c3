// Package location resolves the stock location consumption is posted against.
package location

import (
	"context"
	"time"

	"medstock/internal/core/id"
)

// Type classifies a stock location.
type Type string

const (
	TypeWarehouse Type = "warehouse"
	TypeWard      Type = "ward"
	TypeCart      Type = "cart"
)

// Defaults used when a company has no location yet.
const (
	DefaultCode = "WH-MAIN"
	DefaultName = "Main Warehouse"
)

// Location is a physical or logical storage point of a company.
type Location struct {
	ID           id.ID     `db:"id" json:"id"`
	TenantID     id.ID     `db:"tenant_id" json:"tenantId"`
	CompanyID    id.ID     `db:"company_id" json:"companyId"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	LocationType Type      `db:"location_type" json:"locationType"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// NewDefault builds the location created on first use.
func NewDefault(tenantID, companyID id.ID) *Location {
	return &Location{
		ID:           id.New(),
		TenantID:     tenantID,
		CompanyID:    companyID,
		Name:         DefaultName,
		Code:         DefaultCode,
		LocationType: TypeWarehouse,
		CreatedAt:    time.Now().UTC(),
	}
}

// Repository provides access to stock locations.
// Lookups return apperror NotFound when nothing matches.
type Repository interface {
	// FindPreferred returns the company location with code WH-MAIN, else the
	// oldest warehouse-typed one.
	FindPreferred(ctx context.Context, companyID id.ID) (*Location, error)

	// FindAny returns the oldest location of the company.
	FindAny(ctx context.Context, companyID id.ID) (*Location, error)

	// CreateIfAbsent inserts loc unless (company_id, code) already exists.
	// Reports whether the row was inserted.
	CreateIfAbsent(ctx context.Context, loc *Location) (bool, error)
}
