package billing_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/id"
	"medstock/internal/core/types"
	"medstock/internal/domain/billing/invoice"
)

func TestDraftQuery(t *testing.T) {
	r := NewInvoiceRepo(nil)
	companyID, encounterID := id.New(), id.New()

	locked, args, err := r.draftQuery(companyID, encounterID, true).ToSql()
	require.NoError(t, err)
	assert.Contains(t, locked, "FROM invoice WHERE company_id = $1 AND encounter_id = $2 AND status = $3")
	assert.Contains(t, locked, "LIMIT 1 FOR UPDATE")
	assert.Equal(t, []any{companyID, encounterID, invoice.StatusDraft}, args)

	plain, _, err := r.draftQuery(companyID, encounterID, false).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, plain, "FOR UPDATE")
}

func TestCreateDraftQuery_PartialIndexConflict(t *testing.T) {
	r := NewInvoiceRepo(nil)
	now := time.Now().UTC()
	inv := &invoice.Invoice{
		ID: id.New(), TenantID: id.New(), CompanyID: id.New(), PatientID: id.New(), EncounterID: id.New(),
		InvoiceNumber: "INV-260314-001", InvoiceDate: now, Status: invoice.StatusDraft, Currency: "USD",
		Subtotal: types.Zero(), TotalTax: types.Zero(), Total: types.Zero(), OutstandingAmount: types.Zero(),
		CreatedAt: now, UpdatedAt: now,
		Lines: []invoice.Line{{}},
	}

	sql, args, err := r.createDraftQuery(inv).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO invoice ")
	assert.Contains(t, sql, "ON CONFLICT (company_id, encounter_id) WHERE status = 'draft' DO NOTHING")
	assert.NotContains(t, sql, "lines")
	assert.Len(t, args, len(invoiceColumns))
}

func TestSumQuery(t *testing.T) {
	r := NewInvoiceRepo(nil)

	sql, _, err := r.sumQuery(id.New()).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "COALESCE(SUM(net_amount), 0) AS subtotal")
	assert.Contains(t, sql, "COALESCE(SUM(tax_amount), 0) AS total_tax")
	assert.Contains(t, sql, "FROM invoice_lines WHERE invoice_id = $1")
}

func TestUpdateTotalsQuery_DraftOnly(t *testing.T) {
	r := NewInvoiceRepo(nil)
	inv := &invoice.Invoice{ID: id.New()}
	inv.Apply(invoice.Totals{Subtotal: types.MustMoney("10"), TotalTax: types.MustMoney("0")}, time.Now())

	sql, args, err := r.updateTotalsQuery(inv).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE invoice SET subtotal = $1, total_tax = $2, total = $3, outstanding_amount = $4, updated_at = $5")
	assert.Contains(t, sql, "WHERE id = $6 AND status = $7")
	assert.True(t, types.MustMoney("10").Equal(args[2].(types.Money)))
	assert.True(t, types.MustMoney("10").Equal(args[3].(types.Money)))
}

func TestLineColumns(t *testing.T) {
	assert.Contains(t, lineColumns, "line_idx")
	assert.Contains(t, lineColumns, "net_amount")
	assert.Contains(t, lineColumns, "metadata")
	assert.NotContains(t, invoiceColumns, "lines")
}
