package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSettled PaymentStatus = "settled"
)

// CartItem is one purchasable line of an order. Checkout splits a multi-item
// cart into one order per item, so in practice Cart holds a single entry; the
// slice is kept because the fulfillment engine is written against the general
// shape.
type CartItem struct {
	VariantID string          `json:"variant_id"`
	ProductID string          `json:"product_id"`
	ShopID    string          `json:"shop_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"discounted_unit_price"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	UserEmail       string          `json:"user_email,omitempty"`
	ShopID          string          `json:"shop_id"`
	Cart            []CartItem      `json:"cart"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Status          Status          `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	StockReconciled bool            `json:"stock_reconciled"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	Version         int             `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
