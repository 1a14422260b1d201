package sellers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("seller not found")

type Seller struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type Repo struct{ DB *pgxpool.Pool }

// Credit adds amount to the seller's available balance. Amount may be
// fractional and may be negative, which is how a compensating debit is
// expressed; no bounds are enforced.
func (r *Repo) Credit(ctx context.Context, shopID string, amount decimal.Decimal) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE shops
		SET available_balance = available_balance + $2, updated_at = NOW()
		WHERE id = $1
	`, shopID, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, shopID string) (*Seller, error) {
	var s Seller
	var balance string
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, email, available_balance::text, created_at, updated_at
		FROM shops WHERE id=$1
	`, shopID).Scan(&s.ID, &s.Name, &s.Email, &balance, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.AvailableBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, err
	}
	return &s, nil
}
