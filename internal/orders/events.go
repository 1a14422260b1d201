package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderDelivered       = "OrderDelivered"
	EventOrderRefundRequested = "OrderRefundRequested"
	EventOrderRefunded        = "OrderRefunded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload per event type ----

type OrderCreatedPayload struct {
	OrderID    string     `json:"order_id"`
	UserID     string     `json:"user_id"`
	UserEmail  string     `json:"user_email,omitempty"`
	ShopID     string     `json:"shop_id"`
	Items      []CartItem `json:"items"`
	TotalPrice string     `json:"total_price"`
}

type OrderStatusChangedPayload struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email,omitempty"`
	ShopID    string `json:"shop_id"`
	From      Status `json:"from"`
	To        Status `json:"to"`
}

type OrderDeliveredPayload struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	UserEmail      string `json:"user_email,omitempty"`
	ShopID         string `json:"shop_id"`
	CreditedAmount string `json:"credited_amount"` // total minus service charge
}

type OrderRefundedPayload struct {
	OrderID   string     `json:"order_id"`
	UserID    string     `json:"user_id"`
	UserEmail string     `json:"user_email,omitempty"`
	ShopID    string     `json:"shop_id"`
	Items     []CartItem `json:"items"`
}
