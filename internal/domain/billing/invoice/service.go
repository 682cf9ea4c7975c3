package invoice

import (
	"context"
	"fmt"
	"time"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/core/numerator"
	"medstock/internal/core/types"
	"medstock/internal/domain/catalogs/product"
	"medstock/pkg/logger"
)

// ProductLookup resolves products within a company.
type ProductLookup interface {
	Require(ctx context.Context, companyID, productID id.ID) (*product.Product, error)
}

// PriceSource returns the effective unit price of a product.
type PriceSource interface {
	ResolveUnitPrice(ctx context.Context, p *product.Product) types.Money
}

// PostingItem is one consumed product to bill. A nil UnitPrice is resolved.
type PostingItem struct {
	ProductID id.ID
	Quantity  types.Quantity
	UnitPrice *types.Money
}

// PostingRequest appends lines to the encounter's draft invoice.
type PostingRequest struct {
	TenantID    id.ID
	CompanyID   id.ID
	PatientID   id.ID
	EncounterID id.ID
	ActorID     string
	Items       []PostingItem
}

// DraftUpserterConfig holds upserter settings.
type DraftUpserterConfig struct {
	Currency string
}

// DraftUpserter finds or creates the draft invoice and appends lines.
// Must run inside the caller's transaction.
type DraftUpserter struct {
	repo      Repository
	products  ProductLookup
	prices    PriceSource
	numerator numerator.Generator
	cfg       DraftUpserterConfig
	now       func() time.Time
}

// NewDraftUpserter creates a new draft invoice upserter.
func NewDraftUpserter(
	repo Repository,
	products ProductLookup,
	prices PriceSource,
	gen numerator.Generator,
	cfg DraftUpserterConfig,
) *DraftUpserter {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &DraftUpserter{
		repo:      repo,
		products:  products,
		prices:    prices,
		numerator: gen,
		cfg:       cfg,
		now:       time.Now,
	}
}

// PostConsumption appends one line per item and recomputes totals over all lines.
// The returned invoice carries only the lines added by this call.
func (u *DraftUpserter) PostConsumption(ctx context.Context, req PostingRequest) (*Invoice, error) {
	now := u.now().UTC()

	inv, err := u.lockOrCreateDraft(ctx, req, now)
	if err != nil {
		return nil, err
	}

	maxIdx, err := u.repo.MaxLineIdx(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("max line idx: %w", err)
	}

	lines := make([]Line, 0, len(req.Items))
	for i, item := range req.Items {
		p, err := u.products.Require(ctx, req.CompanyID, item.ProductID)
		if err != nil {
			return nil, err
		}

		price := u.resolvePrice(ctx, p, item.UnitPrice)
		lines = append(lines, Line{
			ID:          id.New(),
			TenantID:    req.TenantID,
			CompanyID:   req.CompanyID,
			InvoiceID:   inv.ID,
			LineIdx:     maxIdx + i + 1,
			ProductID:   p.ID,
			Description: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			NetAmount:   types.LineAmount(item.Quantity, price),
			TaxAmount:   types.Zero(),
			Metadata:    LineMetadata{Source: SourceConsumption},
			CreatedAt:   now,
		})
	}

	if err := u.repo.InsertLines(ctx, lines); err != nil {
		return nil, fmt.Errorf("insert invoice lines: %w", err)
	}

	totals, err := u.repo.SumLines(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("sum invoice lines: %w", err)
	}
	inv.Apply(totals, now)

	if err := u.repo.UpdateTotals(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice totals: %w", err)
	}

	inv.Lines = lines
	return inv, nil
}

func (u *DraftUpserter) resolvePrice(ctx context.Context, p *product.Product, supplied *types.Money) types.Money {
	if supplied != nil {
		return supplied.Round(types.MoneyScale)
	}
	return u.prices.ResolveUnitPrice(ctx, p)
}

// lockOrCreateDraft returns the draft locked FOR UPDATE, creating it when absent.
func (u *DraftUpserter) lockOrCreateDraft(ctx context.Context, req PostingRequest, now time.Time) (*Invoice, error) {
	inv, err := u.repo.FindDraft(ctx, req.CompanyID, req.EncounterID, true)
	if err == nil {
		return inv, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("find draft invoice: %w", err)
	}

	number, err := u.numerator.Next(ctx, numerator.InvoiceConfig(req.CompanyID.String()), now)
	if err != nil {
		return nil, fmt.Errorf("allocate invoice number: %w", err)
	}

	inv = &Invoice{
		ID:                id.New(),
		TenantID:          req.TenantID,
		CompanyID:         req.CompanyID,
		PatientID:         req.PatientID,
		EncounterID:       req.EncounterID,
		InvoiceNumber:     number,
		InvoiceDate:       now,
		Status:            StatusDraft,
		Currency:          u.cfg.Currency,
		Subtotal:          types.Zero(),
		TotalTax:          types.Zero(),
		Total:             types.Zero(),
		OutstandingAmount: types.Zero(),
		CreatedBy:         req.ActorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created, err := u.repo.CreateDraft(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create draft invoice: %w", err)
	}
	if created {
		logger.Info(ctx, "draft invoice created",
			"invoice_id", inv.ID,
			"invoice_number", inv.InvoiceNumber,
			"encounter_id", req.EncounterID)
		return inv, nil
	}

	// Another request created the draft between our lookup and insert.
	inv, err = u.repo.FindDraft(ctx, req.CompanyID, req.EncounterID, true)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewConcurrentModification("invoice", req.EncounterID)
		}
		return nil, fmt.Errorf("find draft invoice after conflict: %w", err)
	}
	return inv, nil
}

// GetDraft returns the encounter's draft invoice with all of its lines.
func (u *DraftUpserter) GetDraft(ctx context.Context, companyID, encounterID id.ID) (*Invoice, error) {
	inv, err := u.repo.FindDraft(ctx, companyID, encounterID, false)
	if err != nil {
		return nil, err
	}
	lines, err := u.repo.ListLines(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	inv.Lines = lines
	return inv, nil
}
