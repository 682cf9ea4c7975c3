package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"medstock/internal/domain/billing/invoice"
)

// InvoiceLineResponse represents an invoice line in API responses.
type InvoiceLineResponse struct {
	LineIdx     int             `json:"lineIdx"`
	ProductID   string          `json:"productId"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	NetAmount   decimal.Decimal `json:"netAmount"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
}

// InvoiceResponse represents a draft invoice with its lines.
type InvoiceResponse struct {
	ID                string                `json:"id"`
	InvoiceNumber     string                `json:"invoiceNumber"`
	InvoiceDate       time.Time             `json:"invoiceDate"`
	Status            string                `json:"status"`
	Currency          string                `json:"currency"`
	PatientID         string                `json:"patientId"`
	EncounterID       string                `json:"encounterId"`
	Subtotal          decimal.Decimal       `json:"subtotal"`
	TotalTax          decimal.Decimal       `json:"totalTax"`
	Total             decimal.Decimal       `json:"total"`
	OutstandingAmount decimal.Decimal       `json:"outstandingAmount"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	Lines             []InvoiceLineResponse `json:"lines"`
}

// FromInvoice converts an invoice to the response DTO.
func FromInvoice(inv *invoice.Invoice) InvoiceResponse {
	lines := make([]InvoiceLineResponse, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = InvoiceLineResponse{
			LineIdx:     l.LineIdx,
			ProductID:   l.ProductID.String(),
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			NetAmount:   l.NetAmount,
			TaxAmount:   l.TaxAmount,
		}
	}
	return InvoiceResponse{
		ID:                inv.ID.String(),
		InvoiceNumber:     inv.InvoiceNumber,
		InvoiceDate:       inv.InvoiceDate,
		Status:            string(inv.Status),
		Currency:          inv.Currency,
		PatientID:         inv.PatientID.String(),
		EncounterID:       inv.EncounterID.String(),
		Subtotal:          inv.Subtotal,
		TotalTax:          inv.TotalTax,
		Total:             inv.Total,
		OutstandingAmount: inv.OutstandingAmount,
		UpdatedAt:         inv.UpdatedAt,
		Lines:             lines,
	}
}
