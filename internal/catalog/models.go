package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

type Product struct {
	ID        string          `json:"id"`
	ShopID    string          `json:"shop_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Variant is a purchasable configuration of a product, carrying its own
// stock count and cumulative sold_out counter.
type Variant struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	SKU       string    `json:"sku"`
	Stock     int       `json:"stock"`
	SoldOut   int       `json:"sold_out"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
