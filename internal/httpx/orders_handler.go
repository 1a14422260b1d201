package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/shoplane/marketplace-orders/internal/catalog"
	"github.com/shoplane/marketplace-orders/internal/fulfillment"
	kafkax "github.com/shoplane/marketplace-orders/internal/kafka"
	"github.com/shoplane/marketplace-orders/internal/orders"
	"github.com/shoplane/marketplace-orders/internal/redisx"
)

type OrderStore interface {
	CreateBatch(ctx context.Context, os []*orders.Order) error
	Get(ctx context.Context, id string) (*orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	ListByShop(ctx context.Context, shopID string) ([]orders.Order, error)
	ListAll(ctx context.Context) ([]orders.Order, error)
}

type TransitionEngine interface {
	Transition(ctx context.Context, orderID string, target orders.Status, actor fulfillment.Actor) (*orders.Order, error)
}

type OrdersHandler struct {
	Store    OrderStore
	Engine   TransitionEngine
	Producer *kafkax.Producer
	Redis    *redis.Client
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/by-user/{userId}", h.listByUser)
	r.Get("/orders/by-seller/{shopId}", h.listByShop)
	r.With(RequireRole(fulfillment.RoleAdmin)).Get("/orders", h.listAll)
	r.With(RequireRole(fulfillment.RoleSeller, fulfillment.RoleAdmin)).
		Put("/orders/{id}/status", h.updateStatus)
	r.Put("/orders/{id}/refund-request", h.requestRefund)
	r.With(RequireRole(fulfillment.RoleSeller, fulfillment.RoleAdmin)).
		Put("/orders/{id}/refund-confirm", h.confirmRefund)
}

// ---- request / response shapes ----

type cartItemReq struct {
	VariantID           string `json:"variant_id"`
	ProductID           string `json:"product_id"`
	ShopID              string `json:"shop_id"`
	Qty                 int    `json:"qty"`
	DiscountedUnitPrice string `json:"discounted_unit_price"`
}

type createOrderReq struct {
	Cart            []cartItemReq `json:"cart"`
	ShippingAddress string        `json:"shipping_address"`
	User            struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	PaymentInfo struct {
		Method string `json:"method"`
	} `json:"payment_info"`
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, kv map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range kv {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func writeFailure(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "message": msg})
}

// ---- handlers ----

// createOrders splits the checkout cart into one order per entry, so each
// seller settles independently.
func (h *OrdersHandler) createOrders(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.User.ID == "" || len(req.Cart) == 0 {
		writeFailure(w, http.StatusBadRequest, "missing user or cart")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	idemKey := r.Header.Get("X-Idempotency-Key")
	if existing, ok := h.replayCheckout(ctx, idemKey); ok {
		writeSuccess(w, http.StatusOK, map[string]any{"orders": existing, "idempotent": true})
		return
	}

	created := make([]*orders.Order, 0, len(req.Cart))
	for _, item := range req.Cart {
		price, err := decimal.NewFromString(item.DiscountedUnitPrice)
		if err != nil || item.Qty <= 0 || item.VariantID == "" {
			writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid cart entry for variant %q", item.VariantID))
			return
		}
		created = append(created, &orders.Order{
			ID:        uuid.NewString(),
			UserID:    req.User.ID,
			UserEmail: req.User.Email,
			ShopID:    item.ShopID,
			Cart: []orders.CartItem{{
				VariantID: item.VariantID,
				ProductID: item.ProductID,
				ShopID:    item.ShopID,
				Qty:       item.Qty,
				UnitPrice: price,
			}},
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentInfo.Method,
			TotalPrice:      price.Mul(decimal.NewFromInt(int64(item.Qty))),
			Status:          orders.StatusProcessing,
			PaymentStatus:   orders.PaymentPending,
		})
	}

	if err := h.Store.CreateBatch(ctx, created); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.rememberCheckout(ctx, idemKey, created)
	for _, o := range created {
		h.cacheOrder(ctx, o)
		h.publish(r, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			UserEmail:  o.UserEmail,
			ShopID:     o.ShopID,
			Items:      o.Cart,
			TotalPrice: o.TotalPrice.String(),
		})
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"orders": created})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderCache, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeSuccess(w, http.StatusOK, map[string]any{"order": json.RawMessage(s)})
			return
		}
	}

	o, err := h.Store.Get(ctx, id)
	if err != nil {
		writeFailure(w, http.StatusNotFound, "order not found")
		return
	}
	h.cacheOrder(ctx, o)
	writeSuccess(w, http.StatusOK, map[string]any{"order": o})
}

func (h *OrdersHandler) listByUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(ctx context.Context) ([]orders.Order, error) {
		return h.Store.ListByUser(ctx, chi.URLParam(r, "userId"))
	})
}

func (h *OrdersHandler) listByShop(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(ctx context.Context) ([]orders.Order, error) {
		return h.Store.ListByShop(ctx, chi.URLParam(r, "shopId"))
	})
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Store.ListAll)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context) ([]orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := fetch(ctx)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeFailure(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.transition(w, r, req.Status)
}

func (h *OrdersHandler) requestRefund(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status != orders.StatusRefundRequested {
		writeFailure(w, http.StatusBadRequest, "status must be refund_requested")
		return
	}
	h.transition(w, r, req.Status)
}

func (h *OrdersHandler) confirmRefund(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		(req.Status != orders.StatusRefundSucceeded && req.Status != orders.StatusRefundRejected) {
		writeFailure(w, http.StatusBadRequest, "status must be refund_succeeded or refund_rejected")
		return
	}
	h.transition(w, r, req.Status)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, target orders.Status) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Engine.Transition(ctx, id, target, actorFrom(r))
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	h.cacheOrder(ctx, o)
	h.publishTransition(r, o)
	writeSuccess(w, http.StatusOK, map[string]any{"order": o})
}

func (h *OrdersHandler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeFailure(w, http.StatusBadRequest, "order not found with this id")
	case errors.Is(err, fulfillment.ErrInvalidTransition):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, fulfillment.ErrInvalidActor):
		writeFailure(w, http.StatusForbidden, err.Error())
	case errors.Is(err, catalog.ErrInsufficientStock):
		writeFailure(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, fulfillment.ErrPartialReconciliation):
		// Operators must reconcile by hand; keep the message distinct.
		writeFailure(w, http.StatusInternalServerError, err.Error())
	default:
		writeFailure(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *OrdersHandler) publishTransition(r *http.Request, o *orders.Order) {
	switch o.Status {
	case orders.StatusDelivered:
		fee := o.TotalPrice.Mul(decimal.NewFromFloat(0.01))
		h.publish(r, orders.EventOrderDelivered, o.ID, orders.OrderDeliveredPayload{
			OrderID:        o.ID,
			UserID:         o.UserID,
			UserEmail:      o.UserEmail,
			ShopID:         o.ShopID,
			CreditedAmount: o.TotalPrice.Sub(fee).String(),
		})
	case orders.StatusRefundRequested:
		h.publish(r, orders.EventOrderRefundRequested, o.ID, orders.OrderStatusChangedPayload{
			OrderID: o.ID, UserID: o.UserID, UserEmail: o.UserEmail, ShopID: o.ShopID,
			To: o.Status,
		})
	case orders.StatusRefundSucceeded:
		h.publish(r, orders.EventOrderRefunded, o.ID, orders.OrderRefundedPayload{
			OrderID: o.ID, UserID: o.UserID, UserEmail: o.UserEmail, ShopID: o.ShopID,
			Items: o.Cart,
		})
	default:
		h.publish(r, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
			OrderID: o.ID, UserID: o.UserID, UserEmail: o.UserEmail, ShopID: o.ShopID,
			To: o.Status,
		})
	}
}

func (h *OrdersHandler) publish(r *http.Request, eventType, orderID string, payload any) {
	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
	}
	ev.Payload = kafkax.MustMarshal(payload)
	h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderCache, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
}

// replayCheckout returns previously created orders when the client retries a
// checkout with the same idempotency key.
func (h *OrdersHandler) replayCheckout(ctx context.Context, idemKey string) ([]orders.Order, bool) {
	if h.Redis == nil || idemKey == "" {
		return nil, false
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, idemKey)
	s, err := h.Redis.Get(ctx, key).Result()
	if err != nil || s == "" {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, false
	}
	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		o, err := h.Store.Get(ctx, id)
		if err != nil {
			return nil, false
		}
		out = append(out, *o)
	}
	return out, true
}

func (h *OrdersHandler) rememberCheckout(ctx context.Context, idemKey string, created []*orders.Order) {
	if h.Redis == nil || idemKey == "" {
		return
	}
	ids := make([]string, 0, len(created))
	for _, o := range created {
		ids = append(ids, o.ID)
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, idemKey)
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(ids), redisx.TTLIdempotency).Err()
}
