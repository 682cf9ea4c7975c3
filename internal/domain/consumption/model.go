// Package consumption posts clinical stock consumption to inventory and billing
// in one transaction.
package consumption

import (
	"medstock/internal/core/id"
	"medstock/internal/core/types"
)

// Views refreshed after a committed posting.
const (
	ViewNursingDashboard = "nursing_dashboard"
	ViewInventoryUsage   = "inventory_usage"
	ViewBillingList      = "billing_list"
)

// Outbox event.
const (
	AggregateInvoice       = "invoice"
	EventConsumptionPosted = "ConsumptionPosted"
	AuditActionConsumption = "consumption"
)

// SingleRequest records one product consumed during an encounter.
type SingleRequest struct {
	ProductID   string         `json:"productId"`
	Quantity    types.Quantity `json:"quantity"`
	PatientID   string         `json:"patientId"`
	EncounterID string         `json:"encounterId"`
	Notes       string         `json:"notes,omitempty"`
}

// BulkItem is one line of a bulk request.
type BulkItem struct {
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	Notes     string         `json:"notes,omitempty"`
}

// BulkRequest records several products in one posting.
// Items with a zero or negative quantity are skipped.
type BulkRequest struct {
	Items       []BulkItem `json:"items"`
	PatientID   string     `json:"patientId"`
	EncounterID string     `json:"encounterId"`
}

// ItemStatus reports what happened to a request item.
type ItemStatus string

const (
	ItemPosted  ItemStatus = "posted"
	ItemSkipped ItemStatus = "skipped"
)

// ItemOutcome is reported per request item, in request order.
type ItemOutcome struct {
	Index     int            `json:"index"`
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	Status    ItemStatus     `json:"status"`
	LineIdx   int            `json:"lineIdx,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Result is returned after commit. A failed posting returns an error instead.
type Result struct {
	Success       bool          `json:"success"`
	InvoiceID     id.ID         `json:"invoiceId"`
	InvoiceNumber string        `json:"invoiceNumber"`
	LocationID    id.ID         `json:"locationId"`
	Items         []ItemOutcome `json:"items"`
}

// PostedEvent is the outbox payload of EventConsumptionPosted.
type PostedEvent struct {
	TenantID      id.ID             `json:"tenantId"`
	CompanyID     id.ID             `json:"companyId"`
	EncounterID   id.ID             `json:"encounterId"`
	PatientID     id.ID             `json:"patientId"`
	LocationID    id.ID             `json:"locationId"`
	InvoiceID     id.ID             `json:"invoiceId"`
	InvoiceNumber string            `json:"invoiceNumber"`
	Items         []PostedEventItem `json:"items"`
}

// PostedEventItem describes one posted line.
type PostedEventItem struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	LineIdx   int            `json:"lineIdx"`
	NetAmount types.Money    `json:"netAmount"`
}

// scope is the session identity every posting runs under.
type scope struct {
	TenantID  id.ID
	CompanyID id.ID
	UserID    string
}

// plannedItem is a validated item to post.
type plannedItem struct {
	index     int
	productID id.ID
	quantity  types.Quantity
	notes     string
}

// plan is a validated request.
type plan struct {
	scope       scope
	patientID   id.ID
	encounterID id.ID
	items       []plannedItem
	outcomes    []ItemOutcome
}
