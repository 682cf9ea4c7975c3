package invoice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/core/numerator"
	"medstock/internal/core/types"
	"medstock/internal/domain/catalogs/product"
)

type memRepo struct {
	mu       sync.Mutex
	invoices []*Invoice
	lines    []Line
	// missNext makes the next FindDraft miss, modelling a concurrent creator.
	missNext  bool
	insertErr error
}

func (m *memRepo) FindDraft(_ context.Context, companyID, encounterID id.ID, _ bool) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missNext {
		m.missNext = false
		return nil, apperror.NewNotFound("invoice", encounterID)
	}
	for _, inv := range m.invoices {
		if inv.CompanyID == companyID && inv.EncounterID == encounterID && inv.Status == StatusDraft {
			cp := *inv
			cp.Lines = nil
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("invoice", encounterID)
}

func (m *memRepo) CreateDraft(_ context.Context, inv *Invoice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.CompanyID == inv.CompanyID && existing.EncounterID == inv.EncounterID && existing.Status == StatusDraft {
			return false, nil
		}
	}
	cp := *inv
	m.invoices = append(m.invoices, &cp)
	return true, nil
}

func (m *memRepo) MaxLineIdx(_ context.Context, invoiceID id.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxIdx := 0
	for _, l := range m.lines {
		if l.InvoiceID == invoiceID && l.LineIdx > maxIdx {
			maxIdx = l.LineIdx
		}
	}
	return maxIdx, nil
}

func (m *memRepo) InsertLines(_ context.Context, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.lines = append(m.lines, lines...)
	return nil
}

func (m *memRepo) SumLines(_ context.Context, invoiceID id.ID) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Totals{Subtotal: types.Zero(), TotalTax: types.Zero()}
	for _, l := range m.lines {
		if l.InvoiceID == invoiceID {
			t.Subtotal = t.Subtotal.Add(l.NetAmount)
			t.TotalTax = t.TotalTax.Add(l.TaxAmount)
		}
	}
	return t, nil
}

func (m *memRepo) UpdateTotals(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.ID == inv.ID {
			existing.Subtotal, existing.TotalTax, existing.Total = inv.Subtotal, inv.TotalTax, inv.Total
			existing.OutstandingAmount, existing.UpdatedAt = inv.OutstandingAmount, inv.UpdatedAt
			return nil
		}
	}
	return apperror.NewNotFound("invoice", inv.ID)
}

func (m *memRepo) ListLines(_ context.Context, invoiceID id.ID) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Line
	for _, l := range m.lines {
		if l.InvoiceID == invoiceID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeProducts map[id.ID]*product.Product

func (f fakeProducts) Require(_ context.Context, companyID, productID id.ID) (*product.Product, error) {
	p, ok := f[productID]
	if !ok || p.CompanyID != companyID {
		return nil, apperror.NewUnknownProduct(productID)
	}
	return p, nil
}

type fixedPrices map[id.ID]types.Money

func (f fixedPrices) ResolveUnitPrice(_ context.Context, p *product.Product) types.Money {
	if price, ok := f[p.ID]; ok {
		return price
	}
	return types.Zero()
}

type fixture struct {
	repo      *memRepo
	upserter  *DraftUpserter
	companyID id.ID
	gauze     *product.Product
	saline    *product.Product
}

func newFixture() *fixture {
	companyID := id.New()
	gauze := &product.Product{ID: id.New(), CompanyID: companyID, Name: "Gauze pad", UOM: "pcs"}
	saline := &product.Product{ID: id.New(), CompanyID: companyID, Name: "Saline 500ml", UOM: "bag"}
	repo := &memRepo{}
	u := NewDraftUpserter(
		repo,
		fakeProducts{gauze.ID: gauze, saline.ID: saline},
		fixedPrices{gauze.ID: types.MustMoney("2.50"), saline.ID: types.MustMoney("12")},
		&numerator.MockGenerator{},
		DraftUpserterConfig{Currency: "EUR"},
	)
	u.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return &fixture{repo: repo, upserter: u, companyID: companyID, gauze: gauze, saline: saline}
}

func (f *fixture) request(encounterID id.ID, items ...PostingItem) PostingRequest {
	return PostingRequest{
		TenantID:    id.New(),
		CompanyID:   f.companyID,
		PatientID:   id.New(),
		EncounterID: encounterID,
		ActorID:     "nurse-1",
		Items:       items,
	}
}

func TestPostConsumption_CreatesDraft(t *testing.T) {
	f := newFixture()
	encounterID := id.New()

	inv, err := f.upserter.PostConsumption(context.Background(),
		f.request(encounterID, PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(5)}))
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, "INV-260314-001", inv.InvoiceNumber)
	require.Len(t, inv.Lines, 1)

	line := inv.Lines[0]
	assert.Equal(t, 1, line.LineIdx)
	assert.Equal(t, "Gauze pad", line.Description)
	assert.True(t, types.MustMoney("12.5").Equal(line.NetAmount))
	assert.True(t, line.TaxAmount.IsZero())
	assert.Equal(t, SourceConsumption, line.Metadata.Source)

	assert.True(t, types.MustMoney("12.5").Equal(inv.Subtotal))
	assert.True(t, inv.Total.Equal(inv.Subtotal.Add(inv.TotalTax)))
	assert.True(t, inv.OutstandingAmount.Equal(inv.Total))
}

func TestPostConsumption_AppendsAndReaggregates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	encounterID := id.New()

	first, err := f.upserter.PostConsumption(ctx,
		f.request(encounterID, PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(5)}))
	require.NoError(t, err)

	second, err := f.upserter.PostConsumption(ctx, f.request(encounterID,
		PostingItem{ProductID: f.saline.ID, Quantity: types.NewQuantity(1)},
		PostingItem{ProductID: f.gauze.ID, Quantity: types.MustQuantity("0.5")},
	))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	require.Len(t, second.Lines, 2)
	assert.Equal(t, 2, second.Lines[0].LineIdx)
	assert.Equal(t, 3, second.Lines[1].LineIdx)

	// 12.5 + 12 + 1.25
	assert.True(t, types.MustMoney("25.75").Equal(second.Subtotal), "got %s", second.Subtotal)
	assert.True(t, second.Total.Equal(second.Subtotal))
	assert.Len(t, f.repo.invoices, 1)

	full, err := f.upserter.GetDraft(ctx, f.companyID, encounterID)
	require.NoError(t, err)
	assert.Len(t, full.Lines, 3)
	assert.True(t, full.Total.Equal(second.Total))
}

func TestPostConsumption_SuppliedPriceWins(t *testing.T) {
	f := newFixture()
	price := types.MustMoney("9.99")

	inv, err := f.upserter.PostConsumption(context.Background(), f.request(id.New(),
		PostingItem{ProductID: f.saline.ID, Quantity: types.NewQuantity(2), UnitPrice: &price}))
	require.NoError(t, err)

	assert.True(t, price.Equal(inv.Lines[0].UnitPrice))
	assert.True(t, types.MustMoney("19.98").Equal(inv.Lines[0].NetAmount))
}

func TestPostConsumption_AmountsFitStorageScale(t *testing.T) {
	f := newFixture()
	price := types.MustMoney("2.00005")

	inv, err := f.upserter.PostConsumption(context.Background(), f.request(id.New(),
		PostingItem{ProductID: f.saline.ID, Quantity: types.NewQuantity(2), UnitPrice: &price},
		PostingItem{ProductID: f.gauze.ID, Quantity: types.MustQuantity("0.3333")},
	))
	require.NoError(t, err)
	require.Len(t, inv.Lines, 2)

	assert.Equal(t, "2.0001", inv.Lines[0].UnitPrice.String())
	assert.Equal(t, "4.0002", inv.Lines[0].NetAmount.String())
	// 0.3333 * 2.50 = 0.83325
	assert.Equal(t, "0.8333", inv.Lines[1].NetAmount.String())
	assert.Equal(t, "4.8335", inv.Subtotal.String())
}

func TestPostConsumption_UnknownProduct(t *testing.T) {
	f := newFixture()

	_, err := f.upserter.PostConsumption(context.Background(), f.request(id.New(),
		PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(1)},
		PostingItem{ProductID: id.New(), Quantity: types.NewQuantity(1)},
	))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnknownProduct))
	assert.Empty(t, f.repo.lines)
}

func TestPostConsumption_LostDraftRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	encounterID := id.New()

	winner, err := f.upserter.PostConsumption(ctx,
		f.request(encounterID, PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(1)}))
	require.NoError(t, err)

	f.repo.missNext = true
	loser, err := f.upserter.PostConsumption(ctx,
		f.request(encounterID, PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(1)}))
	require.NoError(t, err)

	assert.Equal(t, winner.ID, loser.ID)
	assert.Len(t, f.repo.invoices, 1)
	assert.Equal(t, 2, loser.Lines[0].LineIdx)
}

func TestPostConsumption_SeparateEncountersGetSeparateDrafts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.upserter.PostConsumption(ctx, f.request(id.New(), PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(1)}))
	require.NoError(t, err)
	b, err := f.upserter.PostConsumption(ctx, f.request(id.New(), PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(1)}))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "INV-260314-001", a.InvoiceNumber)
	assert.Equal(t, "INV-260314-002", b.InvoiceNumber)
}

func TestPostConsumption_InsertFailure(t *testing.T) {
	f := newFixture()
	f.repo.insertErr = errors.New("connection reset")

	_, err := f.upserter.PostConsumption(context.Background(),
		f.request(id.New(), PostingItem{ProductID: f.gauze.ID, Quantity: types.NewQuantity(1)}))
	assert.ErrorContains(t, err, "connection reset")
}

func TestGetDraft_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.upserter.GetDraft(context.Background(), f.companyID, id.New())
	assert.True(t, apperror.IsNotFound(err))
}
