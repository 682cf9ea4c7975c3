package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstock/internal/core/apperror"
	"medstock/internal/core/audit"
	appctx "medstock/internal/core/context"
	"medstock/internal/core/id"
	"medstock/internal/core/types"
	"medstock/internal/domain/auth"
	"medstock/internal/domain/billing/invoice"
	"medstock/internal/domain/consumption"
	"medstock/internal/domain/registers/stock"
	"medstock/internal/infrastructure/cache"
	"medstock/internal/infrastructure/http/v1/dto"
	"medstock/internal/infrastructure/http/v1/handlers"
	"medstock/pkg/logger"
)

type fakeConsumption struct {
	single      func(ctx context.Context, req consumption.SingleRequest) (*consumption.Result, error)
	lastSingle  consumption.SingleRequest
	lastBulk    consumption.BulkRequest
	draftCalls  int
	lastSession *appctx.UserContext
	lastLimit   int
}

func (f *fakeConsumption) ConsumeSingle(ctx context.Context, req consumption.SingleRequest) (*consumption.Result, error) {
	f.lastSingle = req
	f.lastSession = appctx.GetUser(ctx)
	if f.single != nil {
		return f.single(ctx, req)
	}
	return &consumption.Result{
		Success:       true,
		InvoiceID:     id.New(),
		InvoiceNumber: "INV-260314-001",
		LocationID:    id.New(),
		Items: []consumption.ItemOutcome{
			{ProductID: req.ProductID, Quantity: req.Quantity, Status: consumption.ItemPosted, LineIdx: 1},
		},
	}, nil
}

func (f *fakeConsumption) ConsumeBulk(_ context.Context, req consumption.BulkRequest) (*consumption.Result, error) {
	f.lastBulk = req
	items := make([]consumption.ItemOutcome, len(req.Items))
	for i, it := range req.Items {
		items[i] = consumption.ItemOutcome{Index: i, ProductID: it.ProductID, Quantity: it.Quantity, Status: consumption.ItemPosted, LineIdx: i + 1}
	}
	return &consumption.Result{Success: true, InvoiceID: id.New(), InvoiceNumber: "INV-260314-001", Items: items}, nil
}

func (f *fakeConsumption) DraftInvoice(_ context.Context, encounterID string) (*invoice.Invoice, error) {
	f.draftCalls++
	encID, err := id.Parse(encounterID)
	if err != nil {
		return nil, apperror.NewValidation("encounterId is not a valid id")
	}
	return &invoice.Invoice{
		ID:            id.New(),
		EncounterID:   encID,
		InvoiceNumber: "INV-260314-001",
		Status:        invoice.StatusDraft,
		Currency:      "USD",
		Subtotal:      types.MustMoney("20"),
		TotalTax:      types.Zero(),
		Total:         types.MustMoney("20"),
		Lines: []invoice.Line{
			{LineIdx: 1, Description: "Syringe 5ml", Quantity: types.NewQuantity(5), UnitPrice: types.MustMoney("4"), NetAmount: types.MustMoney("20")},
		},
	}, nil
}

func (f *fakeConsumption) StockLevel(_ context.Context, productID, locationID string) (*stock.Level, error) {
	return &stock.Level{
		ProductID:  id.MustParse(productID),
		LocationID: id.MustParse(locationID),
		Quantity:   types.NewQuantity(-5),
		Reserved:   types.Zero(),
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

func (f *fakeConsumption) InvoiceHistory(_ context.Context, encounterID string, limit int) ([]audit.Record, error) {
	f.lastLimit = limit
	if _, err := id.Parse(encounterID); err != nil {
		return nil, apperror.NewValidation("encounterId is not a valid id")
	}
	invoiceID := id.New()
	return []audit.Record{
		{
			ID: id.New(), EntityType: consumption.AggregateInvoice, EntityID: invoiceID,
			Action: consumption.AuditActionConsumption, UserID: "nurse-1",
			Changes: json.RawMessage(`{"items":[{"lineIdx":2}]}`), CreatedAt: time.Now().UTC(),
		},
		{
			ID: id.New(), EntityType: consumption.AggregateInvoice, EntityID: invoiceID,
			Action: consumption.AuditActionConsumption, UserID: "nurse-1",
			Changes: json.RawMessage(`{"items":[{"lineIdx":1}]}`), CreatedAt: time.Now().UTC().Add(-time.Minute),
		},
	}, nil
}

type testServer struct {
	router http.Handler
	svc    *fakeConsumption
	token  string
}

func newTestServer(t *testing.T, views handlers.ViewCache) *testServer {
	t.Helper()

	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	token, _, err := jwtSvc.GenerateAccessToken(appctx.UserContext{
		UserID:    "nurse-1",
		TenantID:  id.New().String(),
		CompanyID: id.New().String(),
	})
	require.NoError(t, err)

	svc := &fakeConsumption{}
	router := NewRouter(RouterConfig{
		Logger:       logger.NewNop(),
		JWTValidator: jwtSvc,
		Consumption:  svc,
		Views:        views,
		HealthChecks: []handlers.HealthCheck{
			{Name: "database", Check: func(context.Context) error { return nil }},
		},
	})
	return &testServer{router: router, svc: svc, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/encounters/"+id.New().String()+"/consumptions", map[string]any{}, false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, decodeError(t, w).Code)
}

func TestRouter_ConsumeSingle(t *testing.T) {
	s := newTestServer(t, nil)
	encounterID := id.New().String()
	productID := id.New().String()

	w := s.do(t, http.MethodPost, "/api/v1/encounters/"+encounterID+"/consumptions", map[string]any{
		"productId": productID,
		"quantity":  5,
		"patientId": id.New().String(),
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.ConsumptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "INV-260314-001", resp.InvoiceNumber)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "posted", resp.Items[0].Status)
	assert.Equal(t, 1, resp.Items[0].LineIdx)

	assert.Equal(t, encounterID, s.svc.lastSingle.EncounterID)
	assert.Equal(t, "5", s.svc.lastSingle.Quantity.String())
	require.NotNil(t, s.svc.lastSession)
	assert.Equal(t, "nurse-1", s.svc.lastSession.UserID)
}

func TestRouter_ConsumeBulk(t *testing.T) {
	s := newTestServer(t, nil)
	encounterID := id.New().String()

	w := s.do(t, http.MethodPost, "/api/v1/encounters/"+encounterID+"/consumptions/bulk", map[string]any{
		"patientId": id.New().String(),
		"items": []map[string]any{
			{"productId": id.New().String(), "quantity": "2"},
			{"productId": id.New().String(), "quantity": 1.5},
		},
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, s.svc.lastBulk.Items, 2)
	assert.Equal(t, "1.5", s.svc.lastBulk.Items[1].Quantity.String())
	assert.Equal(t, encounterID, s.svc.lastBulk.EncounterID)
}

func TestRouter_RejectsConflictingEncounter(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/encounters/"+id.New().String()+"/consumptions", map[string]any{
		"productId":   id.New().String(),
		"quantity":    1,
		"patientId":   id.New().String(),
		"encounterId": id.New().String(),
	}, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decodeError(t, w).Code)
}

func TestRouter_MapsDomainErrors(t *testing.T) {
	s := newTestServer(t, nil)
	productID := id.New().String()
	s.svc.single = func(context.Context, consumption.SingleRequest) (*consumption.Result, error) {
		return nil, apperror.NewUnknownProduct(productID)
	}

	w := s.do(t, http.MethodPost, "/api/v1/encounters/"+id.New().String()+"/consumptions", map[string]any{
		"productId": productID,
		"quantity":  1,
		"patientId": id.New().String(),
	}, true)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperror.CodeUnknownProduct, body.Code)
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, productID, body.Details["product_id"])
}

func TestRouter_InvoiceIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, cache.NewViewCache(client, time.Minute))
	path := "/api/v1/encounters/" + id.New().String() + "/invoice"

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodGet, path, nil, true)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp dto.InvoiceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "20", resp.Total.String())
		require.Len(t, resp.Lines, 1)
	}
	assert.Equal(t, 1, s.svc.draftCalls)
}

func TestRouter_InvoiceAudit(t *testing.T) {
	s := newTestServer(t, nil)
	path := "/api/v1/encounters/" + id.New().String() + "/invoice/audit"

	w := s.do(t, http.MethodGet, path, nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, path+"?limit=10", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.InvoiceAuditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.InvoiceID)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, consumption.AuditActionConsumption, resp.Entries[0].Action)
	assert.JSONEq(t, `{"items":[{"lineIdx":2}]}`, string(resp.Entries[0].Changes))
	assert.Equal(t, 10, s.svc.lastLimit)

	w = s.do(t, http.MethodGet, path+"?limit=0", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.svc.lastLimit)

	w = s.do(t, http.MethodGet, path+"?limit=1000", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decodeError(t, w).Code)
}

func TestRouter_StockLevelRequiresLocation(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/stock/levels?productId="+id.New().String(), nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/stock/levels?productId="+id.New().String()+"&locationId="+id.New().String(), nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp dto.StockLevelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "-5", resp.Quantity.String())
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health/live", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/health/ready", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
