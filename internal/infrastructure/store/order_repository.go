package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/lib/pq"
)

const orderColumns = `id, payment_reference, user_id, first_name, last_name, email, phone, whatsapp_phone,
	address, city, state, notes, total, payment_status, delivery_status, paid_at, deleted_at,
	created_at, updated_at`

// PostgresOrderRepository implements order.Repository
type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                 order.Order
		userID            sql.NullString
		payment, delivery string
		paidAt, deletedAt sql.NullTime
	)
	c := &o.Customer
	err := row.Scan(&o.ID, &o.PaymentReference, &userID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.WhatsappPhone, &c.Address, &c.City, &c.State, &c.Notes, &o.Total, &payment, &delivery,
		&paidAt, &deletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.UserID = userID.String
	o.PaymentStatus = order.PaymentStatus(payment)
	o.DeliveryStatus = order.DeliveryStatus(delivery)
	o.PaidAt = timePtr(paidAt)
	o.DeletedAt = timePtr(deletedAt)
	return &o, nil
}

func (r *PostgresOrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

// loadItems fetches the line items of several orders in one query, keyed by order id
func (r *PostgresOrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]order.LineItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, size, quantity, price
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]order.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			li   order.LineItem
			size string
		)
		if err := rows.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.ProductName, &size, &li.Quantity, &li.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		li.Size = inventory.Size(size)
		items[li.OrderID] = append(items[li.OrderID], li)
	}
	return items, rows.Err()
}

// listWhere builds the shared WHERE clause for List and its count
func listWhere(f order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", string(f.PaymentStatus))
	}
	if f.DeliveryStatus != "" {
		add("delivery_status = $%d", string(f.DeliveryStatus))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR email ILIKE $%[1]d OR phone ILIKE $%[1]d OR payment_reference ILIKE $%[1]d)", n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgresOrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	f.Normalize()
	where, args := listWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

func (r *PostgresOrderRepository) MarkPaid(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, paid_at = $3, updated_at = $3
		 WHERE id = $1 AND payment_status <> $2`,
		id, string(order.PaymentPaid), at,
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return affected(res)
}

func (r *PostgresOrderRepository) MarkPending(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = now()
		 WHERE id = $1 AND payment_status = $3`,
		id, string(order.PaymentPending), string(order.PaymentUnpaid),
	)
	if err != nil {
		return false, fmt.Errorf("mark order pending: %w", err)
	}
	return affected(res)
}

func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id string, u order.StatusUpdate, expected order.DeliveryStatus, at time.Time) (bool, error) {
	sets := []string{"updated_at = $3"}
	args := []any{id, string(expected), at}
	if u.DeliveryStatus != nil {
		args = append(args, string(*u.DeliveryStatus))
		sets = append(sets, fmt.Sprintf("delivery_status = $%d", len(args)))
	}
	if u.PaymentStatus != nil {
		args = append(args, string(*u.PaymentStatus))
		sets = append(sets, fmt.Sprintf("payment_status = $%d", len(args)))
		if *u.PaymentStatus == order.PaymentPaid {
			sets = append(sets, "paid_at = COALESCE(paid_at, $3)")
		}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND delivery_status = $2`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return affected(res)
}

func (r *PostgresOrderRepository) SoftDelete(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET deleted_at = $3, updated_at = $3
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		id, userID, at,
	)
	if err != nil {
		return false, fmt.Errorf("soft delete order: %w", err)
	}
	return affected(res)
}

func (r *PostgresOrderRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	return affected(res)
}

func (r *PostgresOrderRepository) ListExpired(ctx context.Context, status order.PaymentStatus, cutoff time.Time, limit int) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE payment_status = $1 AND delivery_status = $2 AND created_at < $3
		 ORDER BY created_at LIMIT $4`,
		string(status), string(order.DeliveryPending), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []order.Order
		ids    []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}
