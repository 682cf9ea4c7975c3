package location

import (
	"context"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/pkg/logger"
)

// Resolver finds or lazily creates the default location of a company.
// It may write, so it must run inside the caller's transaction.
type Resolver struct {
	repo Repository
}

// NewResolver creates a new location resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveDefault returns the canonical location for the company:
// the preferred one, else any, else a freshly created Main Warehouse.
func (r *Resolver) ResolveDefault(ctx context.Context, tenantID, companyID id.ID) (*Location, error) {
	loc, err := r.repo.FindPreferred(ctx, companyID)
	if err == nil {
		return loc, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	loc, err = r.repo.FindAny(ctx, companyID)
	if err == nil {
		return loc, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	created := NewDefault(tenantID, companyID)
	inserted, err := r.repo.CreateIfAbsent(ctx, created)
	if err != nil {
		return nil, unavailable(companyID, err)
	}
	if inserted {
		logger.Info(ctx, "default stock location created", "location_id", created.ID)
		return created, nil
	}

	// A concurrent request created it first.
	loc, err = r.repo.FindPreferred(ctx, companyID)
	if err != nil {
		return nil, unavailable(companyID, err)
	}
	return loc, nil
}

// unavailable wraps err as LOCATION_UNAVAILABLE unless it is CONCURRENT_MODIFICATION.
func unavailable(companyID id.ID, err error) error {
	if apperror.IsConcurrentModification(err) {
		return err
	}
	return apperror.NewLocationUnavailable(companyID).WithCause(err)
}
