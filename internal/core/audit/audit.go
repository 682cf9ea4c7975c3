// Package audit defines the read side of the audit trail.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"medstock/internal/core/id"
)

// Record is one stored change of an entity, with Changes decompressed.
type Record struct {
	ID         id.ID           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   id.ID           `json:"entityId"`
	Action     string          `json:"action"`
	UserID     string          `json:"userId"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// History reads the audit trail of an entity within a company, newest first.
type History interface {
	EntityHistory(ctx context.Context, companyID id.ID, entityType string, entityID id.ID, limit int) ([]Record, error)
}
