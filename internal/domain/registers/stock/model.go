// Package stock provides the stock register: append-only movements with their
// ledger entries, and the running stock level per product and location.
package stock

import (
	"context"
	"time"

	"medstock/internal/core/id"
	"medstock/internal/core/types"
)

// MoveType is the direction of a movement.
type MoveType string

const (
	MoveIn       MoveType = "in"
	MoveOut      MoveType = "out"
	MoveTransfer MoveType = "transfer"
)

// Fixed tags written by the consumption flow.
const (
	SourceConsumption    = "consumption"
	RelatedTypeEncounter = "encounter"
)

// Move is an immutable record of one directional movement of a product.
// For outbound moves LocationFrom is set and LocationTo is nil.
type Move struct {
	ID              id.ID          `db:"id" json:"id"`
	TenantID        id.ID          `db:"tenant_id" json:"tenantId"`
	CompanyID       id.ID          `db:"company_id" json:"companyId"`
	ProductID       id.ID          `db:"product_id" json:"productId"`
	LocationFrom    *id.ID         `db:"location_from" json:"locationFrom,omitempty"`
	LocationTo      *id.ID         `db:"location_to" json:"locationTo,omitempty"`
	Qty             types.Quantity `db:"qty" json:"qty"`
	UOM             string         `db:"uom" json:"uom"`
	MoveType        MoveType       `db:"move_type" json:"moveType"`
	Source          string         `db:"source" json:"source"`
	SourceReference string         `db:"source_reference" json:"sourceReference"`
	CreatedBy       string         `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

// LedgerMetadata is stored as jsonb on the ledger entry.
type LedgerMetadata struct {
	Notes     string `json:"notes,omitempty"`
	PatientID string `json:"patient_id"`
}

// LedgerEntry parallels a Move with the context it happened in.
type LedgerEntry struct {
	ID             id.ID          `db:"id" json:"id"`
	TenantID       id.ID          `db:"tenant_id" json:"tenantId"`
	CompanyID      id.ID          `db:"company_id" json:"companyId"`
	ProductID      id.ID          `db:"product_id" json:"productId"`
	RelatedType    string         `db:"related_type" json:"relatedType"`
	RelatedID      string         `db:"related_id" json:"relatedId"`
	MovementType   MoveType       `db:"movement_type" json:"movementType"`
	Qty            types.Quantity `db:"qty" json:"qty"`
	UOM            string         `db:"uom" json:"uom"`
	FromLocationID *id.ID         `db:"from_location_id" json:"fromLocationId,omitempty"`
	Reference      string         `db:"reference" json:"reference"`
	Metadata       LedgerMetadata `db:"metadata" json:"metadata"`
	CreatedBy      string         `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// LevelKey identifies the un-batched stock level row.
type LevelKey struct {
	TenantID   id.ID
	CompanyID  id.ID
	ProductID  id.ID
	LocationID id.ID
}

// Level is the current on-hand quantity. Quantity may be negative.
type Level struct {
	ID         id.ID          `db:"id" json:"id"`
	TenantID   id.ID          `db:"tenant_id" json:"tenantId"`
	CompanyID  id.ID          `db:"company_id" json:"companyId"`
	ProductID  id.ID          `db:"product_id" json:"productId"`
	LocationID id.ID          `db:"location_id" json:"locationId"`
	BatchID    *id.ID         `db:"batch_id" json:"batchId,omitempty"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	Reserved   types.Quantity `db:"reserved" json:"reserved"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// OutboundMovement describes one consumption of a product at a location.
type OutboundMovement struct {
	TenantID    id.ID
	CompanyID   id.ID
	ProductID   id.ID
	LocationID  id.ID
	Quantity    types.Quantity
	UOM         string
	Source      string
	EncounterID id.ID
	PatientID   id.ID
	ActorID     string
	Notes       string
}

// Repository defines storage for the stock register.
// Writes require a transaction in ctx.
type Repository interface {
	// InsertMovement writes the move and its ledger entry together.
	InsertMovement(ctx context.Context, move *Move, entry *LedgerEntry) error

	// UpsertLevelDelta atomically adds delta to the un-batched level row,
	// inserting it with quantity = delta when absent.
	UpsertLevelDelta(ctx context.Context, key LevelKey, delta types.Quantity) (*Level, error)

	// GetLevel returns the un-batched level row or apperror NotFound.
	GetLevel(ctx context.Context, key LevelKey) (*Level, error)
}
