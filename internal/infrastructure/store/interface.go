package store

import (
	"context"
	"time"

	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/order"
)

// UnitOfWork opens transactions that span orders and stock entries
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one open transaction. Callers defer Rollback right after Begin;
// Rollback after a successful Commit is a no-op.
type Tx interface {
	inventory.Ledger

	// ProductName returns the current name of a live product
	ProductName(ctx context.Context, productID string) (string, error)
	// InsertOrder persists the order row and its line items
	InsertOrder(ctx context.Context, o *order.Order) error
	// CancelUnpaid cancels an undelivered order still in the expected, not Paid,
	// payment status. It reports whether a row changed.
	CancelUnpaid(ctx context.Context, orderID string, expected order.PaymentStatus, at time.Time) (bool, error)

	Commit() error
	Rollback() error
}
