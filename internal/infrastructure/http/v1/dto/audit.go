package dto

import (
	"encoding/json"
	"time"

	"medstock/internal/core/audit"
)

// AuditQuery pages the audit trail.
type AuditQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// AuditEntryResponse represents one audit entry in API responses.
type AuditEntryResponse struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	UserID    string          `json:"userId"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// InvoiceAuditResponse is the audit trail of a draft invoice, newest first.
type InvoiceAuditResponse struct {
	InvoiceID string               `json:"invoiceId,omitempty"`
	Entries   []AuditEntryResponse `json:"entries"`
}

// FromAuditRecords converts audit records to the response DTO.
func FromAuditRecords(records []audit.Record) InvoiceAuditResponse {
	resp := InvoiceAuditResponse{Entries: make([]AuditEntryResponse, len(records))}
	for i, r := range records {
		if resp.InvoiceID == "" {
			resp.InvoiceID = r.EntityID.String()
		}
		resp.Entries[i] = AuditEntryResponse{
			ID:        r.ID.String(),
			Action:    r.Action,
			UserID:    r.UserID,
			Changes:   r.Changes,
			CreatedAt: r.CreatedAt,
		}
	}
	return resp
}
