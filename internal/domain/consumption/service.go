package consumption

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medstock/internal/core/apperror"
	"medstock/internal/core/audit"
	"medstock/internal/core/event"
	"medstock/internal/core/id"
	"medstock/internal/core/tx"
	"medstock/internal/core/types"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/domain/catalogs/product"
	"medstock/internal/domain/inventory/location"
	"medstock/internal/domain/registers/stock"
	"medstock/pkg/logger"
)

var tracer = otel.Tracer("medstock/consumption")

// LocationResolver returns the company's default stock location.
type LocationResolver interface {
	ResolveDefault(ctx context.Context, tenantID, companyID id.ID) (*location.Location, error)
}

// ProductLookup resolves products within a company.
type ProductLookup interface {
	Require(ctx context.Context, companyID, productID id.ID) (*product.Product, error)
}

// LedgerWriter appends movement records.
type LedgerWriter interface {
	RecordOutboundMovement(ctx context.Context, m stock.OutboundMovement) (*stock.Move, error)
}

// LevelAggregator maintains running stock levels.
type LevelAggregator interface {
	ApplyDelta(ctx context.Context, key stock.LevelKey, delta types.Quantity) (*stock.Level, error)
	Get(ctx context.Context, key stock.LevelKey) (*stock.Level, error)
}

// InvoicePoster bills consumption to the encounter's draft invoice.
type InvoicePoster interface {
	PostConsumption(ctx context.Context, req invoice.PostingRequest) (*invoice.Invoice, error)
	GetDraft(ctx context.Context, companyID, encounterID id.ID) (*invoice.Invoice, error)
}

// Auditor records who changed what, inside the transaction.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes any) error
}

// ViewInvalidator marks derived views stale.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, tenantID, companyID string, views ...string) error
}

// Dependencies wires the collaborators of Service.
// Events, Audit, History and Views are optional.
type Dependencies struct {
	TxManager tx.Manager
	Locations LocationResolver
	Products  ProductLookup
	Ledger    LedgerWriter
	Levels    LevelAggregator
	Invoices  InvoicePoster
	Events    event.Publisher
	Audit     Auditor
	History   audit.History
	Views     ViewInvalidator
}

// Config tunes the posting transaction.
type Config struct {
	Isolation        tx.Isolation
	StatementTimeout time.Duration

	// MaxRetries re-runs the whole posting on CONCURRENT_MODIFICATION. Zero disables retries.
	MaxRetries int
}

// DefaultConfig returns READ COMMITTED with a 5s statement timeout and no retries.
func DefaultConfig() Config {
	return Config{
		Isolation:        tx.ReadCommitted,
		StatementTimeout: 5 * time.Second,
	}
}

// Service is the transaction boundary for consumption postings.
type Service struct {
	deps Dependencies
	cfg  Config
}

// NewService creates a new consumption service.
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.Isolation == "" {
		cfg.Isolation = tx.ReadCommitted
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Service{deps: deps, cfg: cfg}
}

// ConsumeSingle posts one product consumption.
func (s *Service) ConsumeSingle(ctx context.Context, req SingleRequest) (*Result, error) {
	p, err := validateSingle(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, "single", p)
}

// ConsumeBulk posts several products as one unit. Either every positive item
// posts or none does.
func (s *Service) ConsumeBulk(ctx context.Context, req BulkRequest) (*Result, error) {
	p, err := validateBulk(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, "bulk", p)
}

func (s *Service) post(ctx context.Context, mode string, p *plan) (*Result, error) {
	ctx, span := tracer.Start(ctx, "consumption."+mode,
		trace.WithAttributes(
			attribute.String("encounter_id", p.encounterID.String()),
			attribute.Int("items", len(p.items)),
		))
	defer span.End()

	var (
		result *Result
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = s.postOnce(ctx, p)
		if err == nil || !apperror.IsConcurrentModification(err) || attempt >= s.cfg.MaxRetries {
			break
		}
		logger.Warn(ctx, "consumption conflicted, retrying",
			"encounter_id", p.encounterID,
			"attempt", attempt+1,
			"error", err)
	}
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "consumption rolled back",
			"encounter_id", p.encounterID,
			"error", err)
		return nil, asAppError(err)
	}

	s.invalidateViews(ctx, p.scope)

	logger.Info(ctx, "consumption posted",
		"encounter_id", p.encounterID,
		"invoice_id", result.InvoiceID,
		"items", len(p.items))
	return result, nil
}

// postOnce runs the whole posting in one transaction. Nothing is visible
// outside it until commit.
func (s *Service) postOnce(ctx context.Context, p *plan) (*Result, error) {
	opts := tx.Options{Isolation: s.cfg.Isolation, StatementTimeout: s.cfg.StatementTimeout}
	var result *Result

	err := s.deps.TxManager.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		loc, err := s.deps.Locations.ResolveDefault(ctx, p.scope.TenantID, p.scope.CompanyID)
		if err != nil {
			return err
		}

		postings := make([]invoice.PostingItem, 0, len(p.items))
		for _, item := range p.items {
			if err := s.recordItem(ctx, p, loc, item); err != nil {
				return err
			}
			postings = append(postings, invoice.PostingItem{ProductID: item.productID, Quantity: item.quantity})
		}

		inv, err := s.deps.Invoices.PostConsumption(ctx, invoice.PostingRequest{
			TenantID:    p.scope.TenantID,
			CompanyID:   p.scope.CompanyID,
			PatientID:   p.patientID,
			EncounterID: p.encounterID,
			ActorID:     p.scope.UserID,
			Items:       postings,
		})
		if err != nil {
			return err
		}

		result = buildResult(p, loc, inv)
		return s.record(ctx, p, loc, inv)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) recordItem(ctx context.Context, p *plan, loc *location.Location, item plannedItem) error {
	prod, err := s.deps.Products.Require(ctx, p.scope.CompanyID, item.productID)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			appErr.WithDetail("index", item.index)
		}
		return err
	}

	if _, err := s.deps.Ledger.RecordOutboundMovement(ctx, stock.OutboundMovement{
		TenantID:    p.scope.TenantID,
		CompanyID:   p.scope.CompanyID,
		ProductID:   prod.ID,
		LocationID:  loc.ID,
		Quantity:    item.quantity,
		UOM:         prod.UOM,
		Source:      stock.SourceConsumption,
		EncounterID: p.encounterID,
		PatientID:   p.patientID,
		ActorID:     p.scope.UserID,
		Notes:       item.notes,
	}); err != nil {
		return err
	}

	key := stock.LevelKey{
		TenantID:   p.scope.TenantID,
		CompanyID:  p.scope.CompanyID,
		ProductID:  prod.ID,
		LocationID: loc.ID,
	}
	if _, err := s.deps.Levels.ApplyDelta(ctx, key, item.quantity.Neg()); err != nil {
		return err
	}
	return nil
}

// record writes the outbox event and audit entry in the posting transaction.
func (s *Service) record(ctx context.Context, p *plan, loc *location.Location, inv *invoice.Invoice) error {
	payload := PostedEvent{
		TenantID:      p.scope.TenantID,
		CompanyID:     p.scope.CompanyID,
		EncounterID:   p.encounterID,
		PatientID:     p.patientID,
		LocationID:    loc.ID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Items:         make([]PostedEventItem, 0, len(inv.Lines)),
	}
	for _, line := range inv.Lines {
		payload.Items = append(payload.Items, PostedEventItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			LineIdx:   line.LineIdx,
			NetAmount: line.NetAmount,
		})
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.Publish(ctx, event.Event{
			AggregateType: AggregateInvoice,
			AggregateID:   inv.ID,
			Type:          EventConsumptionPosted,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("publish consumption event: %w", err)
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.LogChange(ctx, AggregateInvoice, inv.ID, AuditActionConsumption, payload); err != nil {
			return fmt.Errorf("audit consumption: %w", err)
		}
	}
	return nil
}

// invalidateViews is best-effort: failures are logged and never surface.
func (s *Service) invalidateViews(ctx context.Context, sc scope) {
	if s.deps.Views == nil {
		return
	}
	err := s.deps.Views.Invalidate(ctx, sc.TenantID.String(), sc.CompanyID.String(),
		ViewNursingDashboard, ViewInventoryUsage, ViewBillingList)
	if err != nil {
		logger.Warn(ctx, "view invalidation failed", "error", err)
	}
}

func buildResult(p *plan, loc *location.Location, inv *invoice.Invoice) *Result {
	outcomes := make([]ItemOutcome, len(p.outcomes))
	copy(outcomes, p.outcomes)

	// Lines come back in posting order, which is request order of posted items.
	for i, item := range p.items {
		if i < len(inv.Lines) {
			outcomes[item.index].LineIdx = inv.Lines[i].LineIdx
		}
	}

	return &Result{
		Success:       true,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		LocationID:    loc.ID,
		Items:         outcomes,
	}
}

func asAppError(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewPersistence(err)
}
