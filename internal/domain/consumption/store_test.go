package consumption

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"medstock/internal/core/apperror"
	"medstock/internal/core/audit"
	appctx "medstock/internal/core/context"
	"medstock/internal/core/event"
	"medstock/internal/core/id"
	"medstock/internal/core/tx"
	"medstock/internal/core/types"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/domain/catalogs/product"
	"medstock/internal/domain/inventory/location"
	"medstock/internal/domain/registers/stock"
)

// memStore backs every repository with in-memory tables and mirrors the
// storage constraints: unique (company_id, code) locations, one un-batched
// level per key, one draft per encounter.
type memStore struct {
	mu sync.Mutex
	memState
}

type memState struct {
	locations []location.Location
	products  map[id.ID]product.Product
	prices    []product.PriceEntry
	moves     []stock.Move
	entries   []stock.LedgerEntry
	levels    map[stock.LevelKey]stock.Level
	invoices  []invoice.Invoice
	lines     []invoice.Line
	events    []event.Event
	audits    []memAudit
}

type memAudit struct {
	companyID id.ID
	record    audit.Record
}

func newMemStore() *memStore {
	return &memStore{memState: memState{
		products: make(map[id.ID]product.Product),
		levels:   make(map[stock.LevelKey]stock.Level),
	}}
}

func (s *memStore) snapshot() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memState{
		locations: append([]location.Location(nil), s.locations...),
		products:  make(map[id.ID]product.Product, len(s.products)),
		prices:    append([]product.PriceEntry(nil), s.prices...),
		moves:     append([]stock.Move(nil), s.moves...),
		entries:   append([]stock.LedgerEntry(nil), s.entries...),
		levels:    make(map[stock.LevelKey]stock.Level, len(s.levels)),
		invoices:  append([]invoice.Invoice(nil), s.invoices...),
		lines:     append([]invoice.Line(nil), s.lines...),
		events:    append([]event.Event(nil), s.events...),
		audits:    append([]memAudit(nil), s.audits...),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.levels {
		snap.levels[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memState = snap
}

func (s *memStore) addProduct(companyID id.ID, name string, basePrice *types.Money) product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := product.Product{ID: id.New(), CompanyID: companyID, Name: name, UOM: "pcs", BasePrice: basePrice}
	s.products[p.ID] = p
	return p
}

func (s *memStore) addPrice(productID id.ID, price string, from time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, product.PriceEntry{ID: id.New(), ProductID: productID, Price: types.MustMoney(price), EffectiveFrom: from})
}

// --- location.Repository ---

func (s *memStore) FindPreferred(_ context.Context, companyID id.ID) (*location.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *location.Location
	for i := range s.locations {
		l := s.locations[i]
		if l.CompanyID != companyID {
			continue
		}
		if l.Code == location.DefaultCode {
			return &l, nil
		}
		if found == nil && l.LocationType == location.TypeWarehouse {
			found = &l
		}
	}
	if found == nil {
		return nil, apperror.NewNotFound("stock_location", companyID)
	}
	return found, nil
}

func (s *memStore) FindAny(_ context.Context, companyID id.ID) (*location.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locations {
		if l.CompanyID == companyID {
			cp := l
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("stock_location", companyID)
}

func (s *memStore) CreateIfAbsent(_ context.Context, loc *location.Location) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locations {
		if l.CompanyID == loc.CompanyID && l.Code == loc.Code {
			return false, nil
		}
	}
	s.locations = append(s.locations, *loc)
	return true, nil
}

// --- product.Repository ---

func (s *memStore) GetByID(_ context.Context, companyID, productID id.ID) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.CompanyID != companyID {
		return nil, apperror.NewNotFound("products", productID)
	}
	return &p, nil
}

func (s *memStore) LatestPrice(_ context.Context, productID id.ID, asOf time.Time) (*product.PriceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matching []product.PriceEntry
	for _, e := range s.prices {
		if e.ProductID == productID && !e.EffectiveFrom.After(asOf) {
			matching = append(matching, e)
		}
	}
	if len(matching) == 0 {
		return nil, apperror.NewNotFound("product_prices", productID)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].EffectiveFrom.After(matching[j].EffectiveFrom) })
	return &matching[0], nil
}

// --- stock.Repository ---

func (s *memStore) InsertMovement(_ context.Context, move *stock.Move, entry *stock.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, *move)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memStore) UpsertLevelDelta(_ context.Context, key stock.LevelKey, delta types.Quantity) (*stock.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lvl, ok := s.levels[key]
	if !ok {
		lvl = stock.Level{ID: id.New(), TenantID: key.TenantID, CompanyID: key.CompanyID,
			ProductID: key.ProductID, LocationID: key.LocationID, Quantity: types.Zero(), Reserved: types.Zero()}
	}
	lvl.Quantity = lvl.Quantity.Add(delta)
	lvl.UpdatedAt = time.Now().UTC()
	s.levels[key] = lvl
	return &lvl, nil
}

func (s *memStore) GetLevel(_ context.Context, key stock.LevelKey) (*stock.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lvl, ok := s.levels[key]
	if !ok {
		return nil, apperror.NewNotFound("stock_levels", key.ProductID)
	}
	return &lvl, nil
}

// --- invoice.Repository ---

func (s *memStore) FindDraft(_ context.Context, companyID, encounterID id.ID, _ bool) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.CompanyID == companyID && inv.EncounterID == encounterID && inv.Status == invoice.StatusDraft {
			cp := inv
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("invoice", encounterID)
}

func (s *memStore) CreateDraft(_ context.Context, inv *invoice.Invoice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invoices {
		if existing.CompanyID == inv.CompanyID && existing.EncounterID == inv.EncounterID && existing.Status == invoice.StatusDraft {
			return false, nil
		}
	}
	s.invoices = append(s.invoices, *inv)
	return true, nil
}

func (s *memStore) MaxLineIdx(_ context.Context, invoiceID id.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxIdx := 0
	for _, l := range s.lines {
		if l.InvoiceID == invoiceID && l.LineIdx > maxIdx {
			maxIdx = l.LineIdx
		}
	}
	return maxIdx, nil
}

func (s *memStore) InsertLines(_ context.Context, lines []invoice.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		for _, existing := range s.lines {
			if existing.InvoiceID == l.InvoiceID && existing.LineIdx == l.LineIdx {
				return apperror.NewConcurrentModification("invoice_lines", l.InvoiceID)
			}
		}
	}
	s.lines = append(s.lines, lines...)
	return nil
}

func (s *memStore) SumLines(_ context.Context, invoiceID id.ID) (invoice.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := invoice.Totals{Subtotal: types.Zero(), TotalTax: types.Zero()}
	for _, l := range s.lines {
		if l.InvoiceID == invoiceID {
			t.Subtotal = t.Subtotal.Add(l.NetAmount)
			t.TotalTax = t.TotalTax.Add(l.TaxAmount)
		}
	}
	return t, nil
}

func (s *memStore) UpdateTotals(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invoices {
		if s.invoices[i].ID == inv.ID {
			s.invoices[i].Subtotal = inv.Subtotal
			s.invoices[i].TotalTax = inv.TotalTax
			s.invoices[i].Total = inv.Total
			s.invoices[i].OutstandingAmount = inv.OutstandingAmount
			s.invoices[i].UpdatedAt = inv.UpdatedAt
			return nil
		}
	}
	return apperror.NewNotFound("invoice", inv.ID)
}

func (s *memStore) ListLines(_ context.Context, invoiceID id.ID) ([]invoice.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []invoice.Line
	for _, l := range s.lines {
		if l.InvoiceID == invoiceID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineIdx < out[j].LineIdx })
	return out, nil
}

// --- event.Publisher and Auditor ---

func (s *memStore) Publish(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memStore) LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	companyID, _ := id.Parse(appctx.GetCompanyID(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, memAudit{companyID: companyID, record: audit.Record{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     appctx.GetUserID(ctx),
		Changes:    raw,
		CreatedAt:  time.Now(),
	}})
	return nil
}

func (s *memStore) EntityHistory(_ context.Context, companyID id.ID, entityType string, entityID id.ID, limit int) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		a := s.audits[i]
		if a.companyID == companyID && a.record.EntityType == entityType && a.record.EntityID == entityID {
			out = append(out, a.record)
		}
	}
	return out, nil
}

// fakeTxManager serialises transactions, which models the row locks the
// database takes, and restores the store snapshot on rollback. Transactions
// never interleave, so races between them are not exercised here.
type fakeTxManager struct {
	mu        sync.Mutex
	store     *memStore
	commits   int
	rollbacks int
	lastOpts  tx.Options
}

type fakeTxKey struct{}

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, tx.Options{}, fn)
}

func (m *fakeTxManager) RunInTransactionWithOptions(ctx context.Context, opts tx.Options, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOpts = opts

	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		m.store.restore(snap)
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func (m *fakeTxManager) counts() (commits, rollbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits, m.rollbacks
}
