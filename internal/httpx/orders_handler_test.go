package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/shoplane/marketplace-orders/internal/catalog"
	"github.com/shoplane/marketplace-orders/internal/fulfillment"
	"github.com/shoplane/marketplace-orders/internal/orders"
)

//
// ---------- stubs ----------
//

type stubStore struct {
	byID    map[string]*orders.Order
	created []*orders.Order
}

func newStubStore(os ...*orders.Order) *stubStore {
	s := &stubStore{byID: map[string]*orders.Order{}}
	for _, o := range os {
		s.byID[o.ID] = o
	}
	return s
}

func (s *stubStore) CreateBatch(ctx context.Context, os []*orders.Order) error {
	for _, o := range os {
		s.byID[o.ID] = o
		s.created = append(s.created, o)
	}
	return nil
}

func (s *stubStore) Get(ctx context.Context, id string) (*orders.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (s *stubStore) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubStore) ListByShop(ctx context.Context, shopID string) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range s.byID {
		if o.ShopID == shopID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubStore) ListAll(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range s.byID {
		out = append(out, *o)
	}
	return out, nil
}

type stubEngine struct {
	result    *orders.Order
	err       error
	gotID     string
	gotTarget orders.Status
	gotActor  fulfillment.Actor
}

func (e *stubEngine) Transition(ctx context.Context, orderID string, target orders.Status, actor fulfillment.Actor) (*orders.Order, error) {
	e.gotID, e.gotTarget, e.gotActor = orderID, target, actor
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func newHandler(store OrderStore, eng TransitionEngine) (*OrdersHandler, http.Handler) {
	h := &OrdersHandler{Store: store, Engine: eng, Service: "test"}
	r := NewRouter()
	h.Register(r)
	return h, r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Orders  []orders.Order  `json:"orders"`
	Order   json.RawMessage `json:"order"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid json response: %v (%s)", err, rec.Body.String())
	}
	return env
}

//
// ---------- tests ----------
//

func TestCreateOrders_SplitsCartIntoOrders(t *testing.T) {
	store := newStubStore()
	_, r := newHandler(store, &stubEngine{})

	body := `{
		"cart": [
			{"variant_id":"v1","product_id":"p1","shop_id":"shop-1","qty":2,"discounted_unit_price":"10"},
			{"variant_id":"v2","product_id":"p2","shop_id":"shop-2","qty":1,"discounted_unit_price":"5.50"}
		],
		"shipping_address": "221B Baker Street",
		"user": {"id":"user-1","email":"buyer@example.com"},
		"payment_info": {"method":"card"}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 2 {
		t.Fatalf("created %d orders, want 2 (one per cart entry)", len(store.created))
	}
	wantTotals := map[string]string{"shop-1": "20", "shop-2": "5.5"}
	for _, o := range store.created {
		if o.Status != orders.StatusProcessing {
			t.Errorf("order %s status=%s, want processing", o.ID, o.Status)
		}
		if o.StockReconciled {
			t.Errorf("order %s created with stock_reconciled set", o.ID)
		}
		want := decimal.RequireFromString(wantTotals[o.ShopID])
		if !o.TotalPrice.Equal(want) {
			t.Errorf("order for %s total=%s, want %s", o.ShopID, o.TotalPrice, want)
		}
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || len(env.Orders) != 2 {
		t.Errorf("envelope: success=%v orders=%d", env.Success, len(env.Orders))
	}
}

func TestCreateOrders_RejectsBadInput(t *testing.T) {
	_, r := newHandler(newStubStore(), &stubEngine{})

	cases := []string{
		`{not json`,
		`{"cart":[],"user":{"id":"u1"}}`,
		`{"cart":[{"variant_id":"v1","qty":0,"discounted_unit_price":"10"}],"user":{"id":"u1"}}`,
		`{"cart":[{"variant_id":"v1","qty":1,"discounted_unit_price":"ten"}],"user":{"id":"u1"}}`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status=%d, want 400", body, rec.Code)
		}
		if env := decodeEnvelope(t, rec); env.Success {
			t.Errorf("body %q: success=true on failure", body)
		}
	}
}

func TestUpdateStatus_RequiresSellerCapability(t *testing.T) {
	_, r := newHandler(newStubStore(), &stubEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/orders/ord-1/status",
		bytes.NewBufferString(`{"status":"shipping"}`))
	// no actor headers: defaults to buyer
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
}

func TestUpdateStatus_RunsTransition(t *testing.T) {
	o := &orders.Order{ID: "ord-1", UserID: "user-1", ShopID: "shop-1", Status: orders.StatusShipping}
	eng := &stubEngine{result: o}
	_, r := newHandler(newStubStore(o), eng)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/orders/ord-1/status",
		bytes.NewBufferString(`{"status":"shipping"}`))
	req.Header.Set(HeaderActorRole, "seller")
	req.Header.Set(HeaderActorID, "shop-1")
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if eng.gotID != "ord-1" || eng.gotTarget != orders.StatusShipping {
		t.Errorf("engine called with id=%s target=%s", eng.gotID, eng.gotTarget)
	}
	if eng.gotActor.Role != fulfillment.RoleSeller || eng.gotActor.ID != "shop-1" {
		t.Errorf("actor = %+v", eng.gotActor)
	}
}

func TestUpdateStatus_MapsEngineErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{orders.ErrNotFound, http.StatusBadRequest},
		{fmt.Errorf("%w: delivered -> shipping", fulfillment.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("%w: role buyer", fulfillment.ErrInvalidActor), http.StatusForbidden},
		{fmt.Errorf("decrement stock: %w", catalog.ErrInsufficientStock), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: undo failed", fulfillment.ErrPartialReconciliation), http.StatusInternalServerError},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		_, r := newHandler(newStubStore(), &stubEngine{err: c.err})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/orders/ord-1/status",
			bytes.NewBufferString(`{"status":"delivered"}`))
		req.Header.Set(HeaderActorRole, "seller")
		r.ServeHTTP(rec, req)
		if rec.Code != c.code {
			t.Errorf("err %v: status=%d, want %d", c.err, rec.Code, c.code)
		}
	}
}

func TestRequestRefund_OnlyAcceptsRefundRequested(t *testing.T) {
	o := &orders.Order{ID: "ord-1", Status: orders.StatusRefundRequested}
	eng := &stubEngine{result: o}
	_, r := newHandler(newStubStore(o), eng)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/orders/ord-1/refund-request",
		bytes.NewBufferString(`{"status":"delivered"}`))
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong status accepted: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/orders/ord-1/refund-request",
		bytes.NewBufferString(`{"status":"refund_requested"}`))
	req.Header.Set(HeaderActorID, "user-1")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if eng.gotActor.Role != fulfillment.RoleBuyer {
		t.Errorf("actor role = %s, want buyer default", eng.gotActor.Role)
	}
}

func TestConfirmRefund_RequiresSellerAndOutcomeStatus(t *testing.T) {
	o := &orders.Order{ID: "ord-1", Status: orders.StatusRefundSucceeded}
	eng := &stubEngine{result: o}
	_, r := newHandler(newStubStore(o), eng)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/orders/ord-1/refund-confirm",
		bytes.NewBufferString(`{"status":"refund_succeeded"}`))
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("buyer allowed to confirm refund: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/orders/ord-1/refund-confirm",
		bytes.NewBufferString(`{"status":"shipping"}`))
	req.Header.Set(HeaderActorRole, "seller")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-refund status accepted: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/orders/ord-1/refund-confirm",
		bytes.NewBufferString(`{"status":"refund_succeeded"}`))
	req.Header.Set(HeaderActorRole, "seller")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if eng.gotTarget != orders.StatusRefundSucceeded {
		t.Errorf("engine target = %s", eng.gotTarget)
	}
}

func TestListByUser(t *testing.T) {
	o := &orders.Order{ID: "ord-1", UserID: "user-1", ShopID: "shop-1", Status: orders.StatusProcessing}
	_, r := newHandler(newStubStore(o), &stubEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/by-user/user-1", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || len(env.Orders) != 1 {
		t.Errorf("envelope: success=%v orders=%d, want 1", env.Success, len(env.Orders))
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	_, r := newHandler(newStubStore(), &stubEngine{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}
