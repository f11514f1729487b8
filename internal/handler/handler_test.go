package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/order"
	"github.com/xenking/loyalty-engine/internal/domain/points"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
	"github.com/xenking/loyalty-engine/internal/domain/product"
	"github.com/xenking/loyalty-engine/internal/domain/reward"
	"github.com/xenking/loyalty-engine/internal/events"
	"github.com/xenking/loyalty-engine/internal/reservation"
)

// --- In-memory fakes ---

type fakeProducts struct{ byID map[string]*product.Product }

func (f *fakeProducts) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeCustomers struct{ byID map[string]*customer.Customer }

func (f *fakeCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type fakeCampaigns struct{ byID map[string]*campaign.Campaign }

func (f *fakeCampaigns) GetByID(_ context.Context, id string) (*campaign.Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaigns) GetByIDs(_ context.Context, ids []string) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) ListActiveStamp(_ context.Context) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, c := range f.byID {
		if c.Type == campaign.TypeStamp && c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaigns) CountUsage(_ context.Context, _ string) (int, error)            { return 0, nil }
func (f *fakeCampaigns) CountCustomerUsage(_ context.Context, _, _ string) (int, error) { return 0, nil }
func (f *fakeCampaigns) CountStampUsage(_ context.Context, _, _ string) (int, error)    { return 0, nil }

type fakeRewards struct{}

func (fakeRewards) GetCatalogEntry(_ context.Context, _ string) (*reward.CatalogEntry, error) {
	return nil, reward.ErrNotFound
}

func (fakeRewards) FindGrant(_ context.Context, _, _ string) (*reward.Grant, error) {
	return nil, nil
}

type fakeHistory struct{ items []pricing.PaidItem }

func (f *fakeHistory) ListPaidItems(_ context.Context, _ string, _ time.Time) ([]pricing.PaidItem, error) {
	return f.items, nil
}

type fakeLedger struct{ entries []points.LedgerEntry }

func (f *fakeLedger) ListByCustomer(_ context.Context, _ string, _ int) ([]points.LedgerEntry, error) {
	return f.entries, nil
}

// fakeStore implements order.Store and order.TxStore with just enough state
// for the idempotency guard to work across requests.
type fakeStore struct {
	customers map[string]*customer.Customer
	campaigns map[string]*campaign.Campaign
	orders    map[string]bool
}

func (f *fakeStore) OrderNumberExists(_ context.Context, orderNumber string) (bool, error) {
	return f.orders[orderNumber], nil
}

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.TxStore) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) UpdateTier(_ context.Context, _ string, _ customer.Tier) error { return nil }

func (f *fakeStore) GetCustomerForUpdate(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetCampaign(_ context.Context, id string) (*campaign.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) CountUsage(_ context.Context, _ string) (int, error)            { return 0, nil }
func (f *fakeStore) CountCustomerUsage(_ context.Context, _, _ string) (int, error) { return 0, nil }

func (f *fakeStore) CreateTransaction(_ context.Context, t *order.Transaction) error {
	f.orders[t.OrderNumber] = true
	return nil
}

func (f *fakeStore) CreateItems(_ context.Context, _ string, _ []pricing.Line) error { return nil }

func (f *fakeStore) CreateCampaignUsage(_ context.Context, _ campaign.UsageRecord) error { return nil }

func (f *fakeStore) CreateStampUsage(_ context.Context, _ campaign.StampUsage) error { return nil }

func (f *fakeStore) RedeemGrant(_ context.Context, _ string, _ time.Time) (bool, error) {
	return true, nil
}

func (f *fakeStore) AppendLedger(_ context.Context, _ points.LedgerEntry) error { return nil }

func (f *fakeStore) UpdateCustomerCounters(_ context.Context, _ string, _ int64, _ decimal.Decimal, _ time.Time) error {
	return nil
}

// --- Test server setup ---

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	welcome := &campaign.Campaign{
		ID:           "welcome",
		Name:         "Welcome 20%",
		Type:         campaign.TypeDiscount,
		DiscountType: campaign.DiscountPercentage,
		Value:        decimal.NewFromInt(20),
		Active:       true,
	}
	cust := &customer.Customer{
		ID:     "c1",
		Name:   "Test Customer",
		Points: 500,
		Tier:   customer.TierSilver,
	}

	products := &fakeProducts{byID: map[string]*product.Product{
		"p1": {ID: "p1", Name: "Big Breakfast", Price: decimal.RequireFromString("100.00"), Category: "food"},
	}}
	customers := &fakeCustomers{byID: map[string]*customer.Customer{"c1": cust}}
	campaigns := &fakeCampaigns{byID: map[string]*campaign.Campaign{"welcome": welcome}}
	store := &fakeStore{
		customers: map[string]*customer.Customer{"c1": cust},
		campaigns: map[string]*campaign.Campaign{"welcome": welcome},
		orders:    make(map[string]bool),
	}
	ledger := &fakeLedger{entries: []points.LedgerEntry{
		{CustomerID: "c1", Amount: 50, Type: points.Earned, Balance: 500, CreatedAt: time.Now()},
	}}

	reservations := reservation.NewMemoryStore(15 * time.Minute)
	calc := pricing.NewCalculator(campaigns, &fakeHistory{})
	svc := order.NewService(
		order.ServiceConfig{},
		products,
		customers,
		campaigns,
		fakeRewards{},
		calc,
		reservations,
		store,
		events.NewBus(zap.NewNop(), 64),
	)

	mux := http.NewServeMux()
	NewHandler(svc, calc, customers, ledger, reservations).Register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

// --- Tests ---

func TestPreviewEndpoint_OK(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/preview", map[string]any{
		"customerId": "c1",
		"items":      []map[string]any{{"productId": "p1", "quantity": 1}},
		"selections": map[string]any{"campaignIds": []string{"welcome"}},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Breakdown struct {
			Subtotal   float64 `json:"subtotal"`
			FinalTotal float64 `json:"finalTotal"`
		} `json:"breakdown"`
		ReservationToken string `json:"reservationToken"`
		TokenInfo        struct {
			Valid bool `json:"valid"`
		} `json:"tokenInfo"`
	}
	decodeInto(t, rec, &resp)
	assert.InDelta(t, 100.0, resp.Breakdown.Subtotal, 0.001)
	assert.InDelta(t, 80.0, resp.Breakdown.FinalTotal, 0.001)
	assert.NotEmpty(t, resp.ReservationToken)
	assert.True(t, resp.TokenInfo.Valid)
}

func TestPreviewEndpoint_Validation(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
	}{
		{
			name:     "missing customer id",
			body:     map[string]any{"items": []map[string]any{{"productId": "p1", "quantity": 1}}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty items",
			body:     map[string]any{"customerId": "c1"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown customer",
			body:     map[string]any{"customerId": "ghost", "items": []map[string]any{{"productId": "p1", "quantity": 1}}},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "unknown product",
			body:     map[string]any{"customerId": "c1", "items": []map[string]any{{"productId": "nope", "quantity": 1}}},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "zero quantity",
			body:     map[string]any{"customerId": "c1", "items": []map[string]any{{"productId": "p1", "quantity": 0}}},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "unknown field rejected",
			body:     map[string]any{"customerId": "c1", "bogus": true},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/orders/preview", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestCompleteEndpoint_FullFlow(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/preview", map[string]any{
		"customerId": "c1",
		"items":      []map[string]any{{"productId": "p1", "quantity": 1}},
		"selections": map[string]any{"usePoints": 100},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var preview struct {
		ReservationToken string `json:"reservationToken"`
	}
	decodeInto(t, rec, &preview)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/complete", map[string]any{
		"reservationToken": preview.ReservationToken,
		"orderNumber":      "ORD-100",
		"paymentMethod":    "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success     bool   `json:"success"`
		OrderNumber string `json:"orderNumber"`
		Summary     struct {
			FinalTotal float64 `json:"finalTotal"`
			PointsUsed int64   `json:"pointsUsed"`
		} `json:"summary"`
	}
	decodeInto(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "ORD-100", resp.OrderNumber)
	assert.InDelta(t, 90.0, resp.Summary.FinalTotal, 0.001)
	assert.EqualValues(t, 100, resp.Summary.PointsUsed)

	// Replaying the order number is a conflict.
	rec = doJSON(t, mux, http.MethodPost, "/api/orders/preview", map[string]any{
		"customerId": "c1",
		"items":      []map[string]any{{"productId": "p1", "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &preview)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/complete", map[string]any{
		"reservationToken": preview.ReservationToken,
		"orderNumber":      "ORD-100",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestCompleteEndpoint_Validation(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
	}{
		{
			name:     "missing token",
			body:     map[string]any{"orderNumber": "ORD-1"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing order number",
			body:     map[string]any{"reservationToken": "tok"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown token",
			body:     map[string]any{"reservationToken": "bogus", "orderNumber": "ORD-1"},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/orders/complete", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestCustomerEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/customers/c1/entitlements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ent struct {
		CustomerID   string `json:"customerId"`
		Entitlements []any  `json:"entitlements"`
	}
	decodeInto(t, rec, &ent)
	assert.Equal(t, "c1", ent.CustomerID)

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/ghost/entitlements", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/c1/points", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pts struct {
		Points int64 `json:"points"`
		Tier   string `json:"tier"`
		Ledger []struct {
			Amount int64 `json:"amount"`
		} `json:"ledger"`
	}
	decodeInto(t, rec, &pts)
	assert.EqualValues(t, 500, pts.Points)
	assert.Equal(t, "SILVER", pts.Tier)
	require.Len(t, pts.Ledger, 1)
	assert.EqualValues(t, 50, pts.Ledger[0].Amount)

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/ghost/points", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationStatusEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/preview", map[string]any{
		"customerId": "c1",
		"items":      []map[string]any{{"productId": "p1", "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		ReservationToken string `json:"reservationToken"`
	}
	decodeInto(t, rec, &preview)

	rec = doJSON(t, mux, http.MethodGet, "/api/reservations/"+preview.ReservationToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		Valid bool `json:"valid"`
	}
	decodeInto(t, rec, &info)
	assert.True(t, info.Valid)

	rec = doJSON(t, mux, http.MethodGet, "/api/reservations/unknown-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
