// Package fulfillment drives order status transitions and keeps the inventory
// and seller-balance ledgers consistent with them: stock is decremented at
// most once per order (transfer-to-carrier, or the delivery fallback), the
// seller is credited exactly once on delivery, and a confirmed refund reverses
// the stock movement.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shoplane/marketplace-orders/internal/catalog"
	"github.com/shoplane/marketplace-orders/internal/orders"
	"github.com/shoplane/marketplace-orders/internal/sellers"
)

var (
	ErrInvalidActor          = errors.New("actor lacks capability for transition")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrPartialReconciliation = errors.New("partial reconciliation")
)

// Platform fee withheld before crediting the seller.
var serviceChargeRate = decimal.NewFromFloat(0.01)

const ledgerAttempts = 3

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Actor identifies the authenticated caller. The auth layer upstream has
// already verified the identity; the engine only checks the capability.
type Actor struct {
	ID   string
	Role Role
}

type OrderStore interface {
	Get(ctx context.Context, id string) (*orders.Order, error)
	Update(ctx context.Context, o *orders.Order) error
}

type InventoryLedger interface {
	Decrement(ctx context.Context, variantID string, qty int) error
	Increment(ctx context.Context, variantID string, qty int) error
}

type BalanceLedger interface {
	Credit(ctx context.Context, shopID string, amount decimal.Decimal) error
}

type Engine struct {
	orders    OrderStore
	inventory InventoryLedger
	balances  BalanceLedger
	locks     *lockTable
	now       func() time.Time
}

func NewEngine(store OrderStore, inv InventoryLedger, bal BalanceLedger) *Engine {
	return &Engine{
		orders:    store,
		inventory: inv,
		balances:  bal,
		locks:     newLockTable(),
		now:       time.Now,
	}
}

// Transition validates and applies a status change. Ledger writes happen
// before the order row is written, so a failed transition never leaves an
// order claiming a state whose side effects did not run; applied ledger
// writes are compensated (LIFO) when a later step fails.
func (e *Engine) Transition(ctx context.Context, orderID string, target orders.Status, actor Actor) (*orders.Order, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()

	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !orders.ValidStatus(target) || !orders.CanTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}
	if !allowed(actor, target) {
		return nil, fmt.Errorf("%w: role %q cannot set %s", ErrInvalidActor, actor.Role, target)
	}

	var comps []compensation

	switch target {
	case orders.StatusTransferredToCarrier:
		if !o.StockReconciled {
			if err := e.decrementCart(ctx, o, &comps); err != nil {
				return nil, e.abort(ctx, o.ID, comps, err)
			}
			o.StockReconciled = true
		}

	case orders.StatusDelivered:
		// Delivery reached without passing through transferred_to_carrier
		// still owes the stock decrement; the flag keeps the two entry
		// points from double-decrementing.
		if !o.StockReconciled {
			if err := e.decrementCart(ctx, o, &comps); err != nil {
				return nil, e.abort(ctx, o.ID, comps, err)
			}
			o.StockReconciled = true
		}
		if o.DeliveredAt == nil {
			t := e.now()
			o.DeliveredAt = &t
		}
		o.PaymentStatus = orders.PaymentSettled

		fee := o.TotalPrice.Mul(serviceChargeRate)
		credit := o.TotalPrice.Sub(fee)
		if err := e.withRetry(ctx, "credit seller", func() error {
			return e.balances.Credit(ctx, o.ShopID, credit)
		}); err != nil {
			return nil, e.abort(ctx, o.ID, comps, err)
		}
		comps = append(comps, func(cctx context.Context) error {
			return e.balances.Credit(cctx, o.ShopID, credit.Neg())
		})

	case orders.StatusRefundSucceeded:
		// Gated on the reconciliation flag so a refund never re-increments
		// stock that was never decremented; clearing the flag keeps the
		// stock+sold_out conservation law over the round trip. The seller
		// balance is deliberately not debited here: refund settlement
		// against the shop is handled out of band.
		if o.StockReconciled {
			if err := e.incrementCart(ctx, o, &comps); err != nil {
				return nil, e.abort(ctx, o.ID, comps, err)
			}
			o.StockReconciled = false
		}
	}

	o.Status = target
	if err := e.orders.Update(ctx, o); err != nil {
		return nil, e.abort(ctx, o.ID, comps, fmt.Errorf("persist order: %w", err))
	}
	return o, nil
}

func allowed(a Actor, target orders.Status) bool {
	if target == orders.StatusRefundRequested {
		return a.Role == RoleBuyer || a.Role == RoleSeller || a.Role == RoleAdmin
	}
	return a.Role == RoleSeller || a.Role == RoleAdmin
}

func (e *Engine) decrementCart(ctx context.Context, o *orders.Order, comps *[]compensation) error {
	for _, item := range o.Cart {
		item := item
		err := e.withRetry(ctx, "decrement stock", func() error {
			return e.inventory.Decrement(ctx, item.VariantID, item.Qty)
		})
		if errors.Is(err, catalog.ErrVariantNotFound) {
			log.Warn().Str("order_id", o.ID).Str("variant_id", item.VariantID).
				Msg("variant not found, skipping stock decrement")
			continue
		}
		if err != nil {
			return err
		}
		*comps = append(*comps, func(cctx context.Context) error {
			return e.inventory.Increment(cctx, item.VariantID, item.Qty)
		})
	}
	return nil
}

func (e *Engine) incrementCart(ctx context.Context, o *orders.Order, comps *[]compensation) error {
	for _, item := range o.Cart {
		item := item
		err := e.withRetry(ctx, "increment stock", func() error {
			return e.inventory.Increment(ctx, item.VariantID, item.Qty)
		})
		if errors.Is(err, catalog.ErrVariantNotFound) {
			log.Warn().Str("order_id", o.ID).Str("variant_id", item.VariantID).
				Msg("variant not found, skipping stock increment")
			continue
		}
		if err != nil {
			return err
		}
		*comps = append(*comps, func(cctx context.Context) error {
			return e.inventory.Decrement(cctx, item.VariantID, item.Qty)
		})
	}
	return nil
}

type compensation func(ctx context.Context) error

// abort undoes already-applied ledger writes in LIFO order. If compensation
// itself fails, the order is in a state only an operator can reconcile, which
// is surfaced as ErrPartialReconciliation rather than the original cause.
func (e *Engine) abort(ctx context.Context, orderID string, comps []compensation, cause error) error {
	var failed []error
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i](ctx); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("compensation failed")
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %v (cause: %v)", ErrPartialReconciliation, errors.Join(failed...), cause)
	}
	if len(comps) > 0 {
		log.Warn().Str("order_id", orderID).Int("undone", len(comps)).
			Msg("transition aborted, ledger writes compensated")
	}
	return cause
}

func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= ledgerAttempts; attempt++ {
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient ledger failure")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, ledgerAttempts, err)
}

// transient reports whether a ledger error is worth retrying. Domain errors
// and context errors are final; anything else is assumed to be I/O.
func transient(err error) bool {
	switch {
	case errors.Is(err, catalog.ErrVariantNotFound),
		errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, sellers.ErrNotFound),
		errors.Is(err, orders.ErrVersionConflict),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
