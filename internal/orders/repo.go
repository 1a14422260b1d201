package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrVersionConflict = errors.New("order version conflict")
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, user_email, shop_id, cart, shipping_address, payment_method,
	total_price::text, status, payment_status, stock_reconciled, delivered_at, version,
	created_at, updated_at`

// CreateBatch persists the orders produced by one checkout in a single
// transaction: either the whole cart becomes orders or none of it does.
func (r *Repo) CreateBatch(ctx context.Context, os []*Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, o := range os {
		cart, err := json.Marshal(o.Cart)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, user_email, shop_id, cart, shipping_address,
			                    payment_method, total_price, status, payment_status,
			                    stock_reconciled, version, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,1,NOW(),NOW())
		`, o.ID, o.UserID, o.UserEmail, o.ShopID, cart, o.ShippingAddress,
			o.PaymentMethod, o.TotalPrice.String(), o.Status, o.PaymentStatus)
		if err != nil {
			return err
		}
		o.Version = 1
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// Update writes back the whole mutable part of the order, guarded by the
// version the caller loaded. A concurrent writer makes the WHERE miss and the
// caller gets ErrVersionConflict instead of clobbering the row.
func (r *Repo) Update(ctx context.Context, o *Order) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, stock_reconciled = $4, delivered_at = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $6
	`, o.ID, o.Status, o.PaymentStatus, o.StockReconciled, o.DeliveredAt, o.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing order from a stale version.
		var n int
		if err := r.DB.QueryRow(ctx, `SELECT 1 FROM orders WHERE id=$1`, o.ID).Scan(&n); err != nil {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	o.Version++
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) ListByShop(ctx context.Context, shopID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE shop_id=$1 ORDER BY created_at DESC`, shopID)
}

func (r *Repo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders
		ORDER BY delivered_at DESC NULLS LAST, created_at DESC`)
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o     Order
		cart  []byte
		total string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.UserEmail, &o.ShopID, &cart, &o.ShippingAddress,
		&o.PaymentMethod, &total, &o.Status, &o.PaymentStatus, &o.StockReconciled,
		&o.DeliveredAt, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cart, &o.Cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total_price: %w", err)
	}
	o.TotalPrice = t
	return &o, nil
}
