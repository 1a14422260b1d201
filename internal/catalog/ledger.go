package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Ledger owns the stock / sold_out counters. Each call is a single
// read-modify-write against one variant row; there is no cross-product
// transaction, callers sequence and compensate these operations themselves.
type Ledger struct{ DB *pgxpool.Pool }

// Decrement moves qty units from stock to sold_out. Stock never goes
// negative: a shortage leaves the row untouched and reports
// ErrInsufficientStock.
func (l *Ledger) Decrement(ctx context.Context, variantID string, qty int) error {
	tag, err := l.DB.Exec(ctx, `
		UPDATE variants
		SET stock = stock - $2, sold_out = sold_out + $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, variantID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var stock int
	err = l.DB.QueryRow(ctx, `SELECT stock FROM variants WHERE id=$1`, variantID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVariantNotFound
	}
	if err != nil {
		return err
	}
	return ErrInsufficientStock
}

// Increment is the refund inverse of Decrement and always succeeds for a
// resolvable variant.
func (l *Ledger) Increment(ctx context.Context, variantID string, qty int) error {
	tag, err := l.DB.Exec(ctx, `
		UPDATE variants
		SET stock = stock + $2, sold_out = sold_out - $2, updated_at = NOW()
		WHERE id = $1
	`, variantID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVariantNotFound
	}
	return nil
}

// FindProductByVariant resolves the owning product of a variant.
func (l *Ledger) FindProductByVariant(ctx context.Context, variantID string) (*Product, error) {
	var p Product
	var price string
	err := l.DB.QueryRow(ctx, `
		SELECT p.id, p.shop_id, p.name, p.price::text, p.created_at, p.updated_at
		FROM products p JOIN variants v ON v.product_id = p.id
		WHERE v.id = $1
	`, variantID).Scan(&p.ID, &p.ShopID, &p.Name, &price, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Price, err = parsePrice(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) GetVariant(ctx context.Context, variantID string) (*Variant, error) {
	var v Variant
	err := l.DB.QueryRow(ctx, `
		SELECT id, product_id, sku, stock, sold_out, created_at, updated_at
		FROM variants WHERE id=$1
	`, variantID).Scan(&v.ID, &v.ProductID, &v.SKU, &v.Stock, &v.SoldOut, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
