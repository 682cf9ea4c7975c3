package dto

import (
	"github.com/shopspring/decimal"

	"medstock/internal/domain/consumption"
)

// ConsumeRequest records a single product consumed during an encounter.
// EncounterID is optional in the body; the path parameter wins when both agree.
type ConsumeRequest struct {
	ProductID   string          `json:"productId" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	PatientID   string          `json:"patientId" binding:"required"`
	EncounterID string          `json:"encounterId"`
	Notes       string          `json:"notes"`
}

// ToDomain converts the request for the consumption service.
func (r ConsumeRequest) ToDomain(encounterID string) consumption.SingleRequest {
	return consumption.SingleRequest{
		ProductID:   r.ProductID,
		Quantity:    r.Quantity,
		PatientID:   r.PatientID,
		EncounterID: encounterID,
		Notes:       r.Notes,
	}
}

// BulkConsumeItem is one line of a bulk request.
type BulkConsumeItem struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Notes     string          `json:"notes"`
}

// BulkConsumeRequest records several products in one posting.
type BulkConsumeRequest struct {
	Items       []BulkConsumeItem `json:"items"`
	PatientID   string            `json:"patientId" binding:"required"`
	EncounterID string            `json:"encounterId"`
}

// ToDomain converts the request for the consumption service.
func (r BulkConsumeRequest) ToDomain(encounterID string) consumption.BulkRequest {
	items := make([]consumption.BulkItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = consumption.BulkItem{ProductID: it.ProductID, Quantity: it.Quantity, Notes: it.Notes}
	}
	return consumption.BulkRequest{
		Items:       items,
		PatientID:   r.PatientID,
		EncounterID: encounterID,
	}
}

// ItemOutcomeResponse reports one request item.
type ItemOutcomeResponse struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
	LineIdx   int             `json:"lineIdx,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// ConsumptionResponse is returned after a committed posting.
type ConsumptionResponse struct {
	Success       bool                  `json:"success"`
	InvoiceID     string                `json:"invoiceId"`
	InvoiceNumber string                `json:"invoiceNumber"`
	LocationID    string                `json:"locationId"`
	Items         []ItemOutcomeResponse `json:"items"`
}

// FromConsumptionResult converts a service result to the response DTO.
func FromConsumptionResult(r *consumption.Result) ConsumptionResponse {
	items := make([]ItemOutcomeResponse, len(r.Items))
	for i, it := range r.Items {
		items[i] = ItemOutcomeResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Status:    string(it.Status),
			LineIdx:   it.LineIdx,
			Reason:    it.Reason,
		}
	}
	return ConsumptionResponse{
		Success:       r.Success,
		InvoiceID:     r.InvoiceID.String(),
		InvoiceNumber: r.InvoiceNumber,
		LocationID:    r.LocationID.String(),
		Items:         items,
	}
}
