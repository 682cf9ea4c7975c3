package stock

import (
	"context"
	"fmt"
	"time"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/core/types"
	"medstock/pkg/logger"
)

// LedgerWriter appends movement and ledger records. It never opens a
// transaction; any failure must abort the caller's.
type LedgerWriter struct {
	repo Repository
}

// NewLedgerWriter creates a new ledger writer.
func NewLedgerWriter(repo Repository) *LedgerWriter {
	return &LedgerWriter{repo: repo}
}

// RecordOutboundMovement writes exactly one outbound Move and one LedgerEntry.
func (w *LedgerWriter) RecordOutboundMovement(ctx context.Context, m OutboundMovement) (*Move, error) {
	if !m.Quantity.IsPositive() {
		return nil, apperror.NewValidation("movement quantity must be positive").
			WithDetail("product_id", m.ProductID)
	}

	now := time.Now().UTC()
	from := m.LocationID
	source := m.Source
	if source == "" {
		source = SourceConsumption
	}

	move := &Move{
		ID:              id.New(),
		TenantID:        m.TenantID,
		CompanyID:       m.CompanyID,
		ProductID:       m.ProductID,
		LocationFrom:    &from,
		Qty:             m.Quantity,
		UOM:             m.UOM,
		MoveType:        MoveOut,
		Source:          source,
		SourceReference: m.EncounterID.String(),
		CreatedBy:       m.ActorID,
		CreatedAt:       now,
	}

	entry := &LedgerEntry{
		ID:             id.New(),
		TenantID:       m.TenantID,
		CompanyID:      m.CompanyID,
		ProductID:      m.ProductID,
		RelatedType:    RelatedTypeEncounter,
		RelatedID:      m.EncounterID.String(),
		MovementType:   MoveOut,
		Qty:            m.Quantity,
		UOM:            m.UOM,
		FromLocationID: &from,
		Reference:      PatientReference(m.PatientID),
		Metadata: LedgerMetadata{
			Notes:     m.Notes,
			PatientID: m.PatientID.String(),
		},
		CreatedBy: m.ActorID,
		CreatedAt: now,
	}

	if err := w.repo.InsertMovement(ctx, move, entry); err != nil {
		return nil, asPersistence(fmt.Errorf("record outbound movement: %w", err))
	}

	logger.Debug(ctx, "outbound movement recorded",
		"move_id", move.ID,
		"product_id", m.ProductID,
		"qty", m.Quantity.String())

	return move, nil
}

// PatientReference is the human-readable ledger reference for a patient.
func PatientReference(patientID id.ID) string {
	return "Patient " + patientID.String()
}

// LevelAggregator maintains the running stock level.
type LevelAggregator struct {
	repo Repository
}

// NewLevelAggregator creates a new level aggregator.
func NewLevelAggregator(repo Repository) *LevelAggregator {
	return &LevelAggregator{repo: repo}
}

// ApplyDelta adds delta (negative for consumption) to the level for key.
// No floor is applied: the level may go negative.
func (a *LevelAggregator) ApplyDelta(ctx context.Context, key LevelKey, delta types.Quantity) (*Level, error) {
	level, err := a.repo.UpsertLevelDelta(ctx, key, delta)
	if err != nil {
		return nil, asPersistence(fmt.Errorf("apply stock delta: %w", err))
	}
	return level, nil
}

// Get returns the current level for key.
func (a *LevelAggregator) Get(ctx context.Context, key LevelKey) (*Level, error) {
	return a.repo.GetLevel(ctx, key)
}

func asPersistence(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewPersistence(err)
}
