package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/order"
)

// PostgresUnitOfWork begins database/sql transactions
type PostgresUnitOfWork struct {
	db *sql.DB
}

func NewPostgresUnitOfWork(db *sql.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db}
}

// Begin opens a read-committed transaction. Row locks taken by the guarded
// stock update serialize concurrent reservations on the same entry.
func (u *PostgresUnitOfWork) Begin(ctx context.Context) (Tx, error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Available(ctx context.Context, productID string, size inventory.Size) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx,
		`SELECT stock FROM product_sizes WHERE product_id = $1 AND size = $2`,
		productID, string(size),
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.InsufficientStock(productID, size)
	}
	if err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return stock, nil
}

func (t *pgTx) Reserve(ctx context.Context, productID string, size inventory.Size, quantity int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE product_sizes SET stock = stock - $3, updated_at = now()
		 WHERE product_id = $1 AND size = $2 AND stock >= $3`,
		productID, string(size), quantity,
	)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if !ok {
		return inventory.InsufficientStock(productID, size)
	}
	return nil
}

func (t *pgTx) Release(ctx context.Context, productID string, size inventory.Size, quantity int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO product_sizes (product_id, size, stock) VALUES ($1, $2, $3)
		 ON CONFLICT (product_id, size)
		 DO UPDATE SET stock = product_sizes.stock + EXCLUDED.stock, updated_at = now()`,
		productID, string(size), quantity,
	)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func (t *pgTx) ProductName(ctx context.Context, productID string) (string, error) {
	var name string
	err := t.tx.QueryRowContext(ctx,
		`SELECT name FROM products WHERE id = $1 AND deleted_at IS NULL`,
		productID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.New(apperror.KindNotFound, "Product not found").WithDetail("product_id", productID)
	}
	if err != nil {
		return "", fmt.Errorf("read product name: %w", err)
	}
	return name, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *order.Order) error {
	c := o.Customer
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (id, payment_reference, user_id, first_name, last_name, email, phone,
			whatsapp_phone, address, city, state, notes, total, payment_status, delivery_status,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.PaymentReference, nullString(o.UserID), c.FirstName, c.LastName, c.Email, c.Phone,
		c.WhatsappPhone, c.Address, c.City, c.State, c.Notes, o.Total, string(o.PaymentStatus),
		string(o.DeliveryStatus), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "order reference already exists", "insert order")
	}

	for i, item := range o.Items {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, position, product_id, product_name, size, quantity, price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, o.ID, i, item.ProductID, item.ProductName, string(item.Size), item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

func (t *pgTx) CancelUnpaid(ctx context.Context, orderID string, expected order.PaymentStatus, at time.Time) (bool, error) {
	if expected == order.PaymentPaid {
		return false, nil
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET delivery_status = $2, updated_at = $3
		 WHERE id = $1 AND payment_status = $4 AND delivery_status = $5`,
		orderID, string(order.DeliveryCancelled), at, string(expected), string(order.DeliveryPending),
	)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return affected(res)
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
