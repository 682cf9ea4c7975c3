// Package invoice maintains the draft invoice an encounter's consumption is billed to.
package invoice

import (
	"context"
	"time"

	"medstock/internal/core/id"
	"medstock/internal/core/types"
)

// Status is the invoice lifecycle state. Only drafts receive new lines.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPosted Status = "posted"
	StatusPaid   Status = "paid"
	StatusVoid   Status = "void"
)

// SourceConsumption tags lines created from stock consumption.
const SourceConsumption = "consumption"

// Invoice is the billing document of an encounter.
// At most one draft exists per (company, encounter).
type Invoice struct {
	ID                id.ID       `db:"id" json:"id"`
	TenantID          id.ID       `db:"tenant_id" json:"tenantId"`
	CompanyID         id.ID       `db:"company_id" json:"companyId"`
	PatientID         id.ID       `db:"patient_id" json:"patientId"`
	EncounterID       id.ID       `db:"encounter_id" json:"encounterId"`
	InvoiceNumber     string      `db:"invoice_number" json:"invoiceNumber"`
	InvoiceDate       time.Time   `db:"invoice_date" json:"invoiceDate"`
	Status            Status      `db:"status" json:"status"`
	Currency          string      `db:"currency" json:"currency"`
	Subtotal          types.Money `db:"subtotal" json:"subtotal"`
	TotalTax          types.Money `db:"total_tax" json:"totalTax"`
	Total             types.Money `db:"total" json:"total"`
	OutstandingAmount types.Money `db:"outstanding_amount" json:"outstandingAmount"`
	CreatedBy         string      `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`

	Lines []Line `db:"-" json:"lines,omitempty"`
}

// LineMetadata is stored as jsonb on the line.
type LineMetadata struct {
	Source string `json:"source"`
}

// Line is one billed product. NetAmount is fixed at creation.
type Line struct {
	ID          id.ID          `db:"id" json:"id"`
	TenantID    id.ID          `db:"tenant_id" json:"tenantId"`
	CompanyID   id.ID          `db:"company_id" json:"companyId"`
	InvoiceID   id.ID          `db:"invoice_id" json:"invoiceId"`
	LineIdx     int            `db:"line_idx" json:"lineIdx"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	Description string         `db:"description" json:"description"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	NetAmount   types.Money    `db:"net_amount" json:"netAmount"`
	TaxAmount   types.Money    `db:"tax_amount" json:"taxAmount"`
	Metadata    LineMetadata   `db:"metadata" json:"metadata"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// Totals are the line sums of an invoice.
type Totals struct {
	Subtotal types.Money `db:"subtotal"`
	TotalTax types.Money `db:"total_tax"`
}

// Total returns subtotal + total tax.
func (t Totals) Total() types.Money {
	return t.Subtotal.Add(t.TotalTax)
}

// Apply recomputes the invoice totals. Drafts carry no payments, so the
// outstanding amount equals the total.
func (inv *Invoice) Apply(t Totals, at time.Time) {
	inv.Subtotal = t.Subtotal
	inv.TotalTax = t.TotalTax
	inv.Total = t.Total()
	inv.OutstandingAmount = inv.Total
	inv.UpdatedAt = at
}

// Repository stores invoices. Writes require a transaction in ctx.
type Repository interface {
	// FindDraft returns the draft for (company, encounter) or apperror NotFound.
	// With forUpdate the row stays locked until the transaction ends.
	FindDraft(ctx context.Context, companyID, encounterID id.ID, forUpdate bool) (*Invoice, error)

	// CreateDraft inserts inv unless a draft already exists for its encounter.
	// Reports whether the row was inserted.
	CreateDraft(ctx context.Context, inv *Invoice) (bool, error)

	// MaxLineIdx returns the highest line_idx of the invoice, 0 when it has none.
	MaxLineIdx(ctx context.Context, invoiceID id.ID) (int, error)

	InsertLines(ctx context.Context, lines []Line) error

	// SumLines aggregates net and tax amounts over all lines of the invoice.
	SumLines(ctx context.Context, invoiceID id.ID) (Totals, error)

	UpdateTotals(ctx context.Context, inv *Invoice) error

	ListLines(ctx context.Context, invoiceID id.ID) ([]Line, error)
}
