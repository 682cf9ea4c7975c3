// Package billing_repo provides PostgreSQL implementations for billing repositories.
package billing_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/infrastructure/storage/postgres"
)

const (
	invoiceTable      = "invoice"
	invoiceLinesTable = "invoice_lines"
)

var (
	invoiceColumns = postgres.ExtractDBColumns[invoice.Invoice]()
	lineColumns    = postgres.ExtractDBColumns[invoice.Line]()
)

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchExecutor
	builder   squirrel.StatementBuilderType
}

var _ invoice.Repository = (*InvoiceRepo)(nil)

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo(txManager *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{
		txManager: txManager,
		batch:     postgres.NewBatchExecutor(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *InvoiceRepo) draftQuery(companyID, encounterID id.ID, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(invoiceColumns...).
		From(invoiceTable).
		Where(squirrel.Eq{
			"company_id":   companyID,
			"encounter_id": encounterID,
			"status":       invoice.StatusDraft,
		}).
		Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

// FindDraft returns the draft invoice of the encounter.
func (r *InvoiceRepo) FindDraft(ctx context.Context, companyID, encounterID id.ID, forUpdate bool) (*invoice.Invoice, error) {
	sql, args, err := r.draftQuery(companyID, encounterID, forUpdate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build draft query: %w", err)
	}

	var inv invoice.Invoice
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(invoiceTable, encounterID)
		}
		return nil, postgres.MapError(fmt.Errorf("find draft invoice: %w", err))
	}
	return &inv, nil
}

// createDraftQuery targets the partial unique index on drafts.
func (r *InvoiceRepo) createDraftQuery(inv *invoice.Invoice) squirrel.InsertBuilder {
	return r.builder.Insert(invoiceTable).
		SetMap(postgres.InsertMap(inv, invoiceColumns)).
		Suffix("ON CONFLICT (company_id, encounter_id) WHERE status = 'draft' DO NOTHING")
}

// CreateDraft inserts the draft unless the encounter already has one.
func (r *InvoiceRepo) CreateDraft(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	sql, args, err := r.createDraftQuery(inv).ToSql()
	if err != nil {
		return false, fmt.Errorf("build draft insert: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, postgres.MapError(fmt.Errorf("insert draft invoice: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

// MaxLineIdx returns the current highest line index.
func (r *InvoiceRepo) MaxLineIdx(ctx context.Context, invoiceID id.ID) (int, error) {
	sql, args, err := r.builder.Select("COALESCE(MAX(line_idx), 0)").
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build max line query: %w", err)
	}

	var maxIdx int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&maxIdx); err != nil {
		return 0, postgres.MapError(fmt.Errorf("max line idx: %w", err))
	}
	return maxIdx, nil
}

// InsertLines writes all lines in one batch.
func (r *InvoiceRepo) InsertLines(ctx context.Context, lines []invoice.Line) error {
	if len(lines) == 0 {
		return nil
	}

	queries := make([]postgres.BatchQuery, 0, len(lines))
	for i := range lines {
		q, err := postgres.ToBatchQuery(r.builder.Insert(invoiceLinesTable).SetMap(postgres.InsertMap(&lines[i], lineColumns)))
		if err != nil {
			return err
		}
		queries = append(queries, q)
	}

	if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
		return postgres.MapError(fmt.Errorf("insert invoice lines: %w", err))
	}
	return nil
}

func (r *InvoiceRepo) sumQuery(invoiceID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(
		"COALESCE(SUM(net_amount), 0) AS subtotal",
		"COALESCE(SUM(tax_amount), 0) AS total_tax",
	).
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID})
}

// SumLines aggregates over every line currently on the invoice.
func (r *InvoiceRepo) SumLines(ctx context.Context, invoiceID id.ID) (invoice.Totals, error) {
	var totals invoice.Totals

	sql, args, err := r.sumQuery(invoiceID).ToSql()
	if err != nil {
		return totals, fmt.Errorf("build sum query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &totals, sql, args...); err != nil {
		return totals, postgres.MapError(fmt.Errorf("sum invoice lines: %w", err))
	}
	return totals, nil
}

func (r *InvoiceRepo) updateTotalsQuery(inv *invoice.Invoice) squirrel.UpdateBuilder {
	return r.builder.Update(invoiceTable).
		Set("subtotal", inv.Subtotal).
		Set("total_tax", inv.TotalTax).
		Set("total", inv.Total).
		Set("outstanding_amount", inv.OutstandingAmount).
		Set("updated_at", inv.UpdatedAt).
		Where(squirrel.Eq{"id": inv.ID, "status": invoice.StatusDraft})
}

// UpdateTotals writes recomputed totals. The draft is already locked by FindDraft.
func (r *InvoiceRepo) UpdateTotals(ctx context.Context, inv *invoice.Invoice) error {
	sql, args, err := r.updateTotalsQuery(inv).ToSql()
	if err != nil {
		return fmt.Errorf("build totals update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("update invoice totals: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(invoiceTable, inv.ID)
	}
	return nil
}

// ListLines returns the invoice lines ordered by line_idx.
func (r *InvoiceRepo) ListLines(ctx context.Context, invoiceID id.ID) ([]invoice.Line, error) {
	sql, args, err := r.builder.Select(lineColumns...).
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		OrderBy("line_idx").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}

	var lines []invoice.Line
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, postgres.MapError(fmt.Errorf("list invoice lines: %w", err))
	}
	return lines, nil
}
