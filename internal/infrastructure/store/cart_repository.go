package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/inventory"
)

const cartItemSelect = `SELECT ci.id, ci.product_id, p.name, ci.size, ci.quantity, p.price, ci.created_at, ci.updated_at
	FROM cart_items ci JOIN products p ON p.id = ci.product_id`

// PostgresCartRepository implements cart.Repository
type PostgresCartRepository struct {
	db *sql.DB
}

func NewPostgresCartRepository(db *sql.DB) *PostgresCartRepository {
	return &PostgresCartRepository{db: db}
}

func scanCartItem(row rowScanner) (*cart.Item, error) {
	var (
		it   cart.Item
		size string
	)
	if err := row.Scan(&it.ID, &it.ProductID, &it.ProductName, &size, &it.Quantity, &it.Price, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Size = inventory.Size(size)
	return &it, nil
}

func (r *PostgresCartRepository) Items(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		cartItemSelect+` WHERE ci.user_id = $1 AND p.deleted_at IS NULL ORDER BY ci.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *PostgresCartRepository) GetItem(ctx context.Context, userID, itemID string) (*cart.Item, error) {
	it, err := scanCartItem(r.db.QueryRowContext(ctx,
		cartItemSelect+` WHERE ci.user_id = $1 AND ci.id = $2`, userID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return it, nil
}

func (r *PostgresCartRepository) AddItem(ctx context.Context, userID string, item cart.Item) (*cart.Item, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO cart_items (id, user_id, product_id, size, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (user_id, product_id, size)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		item.ID, userID, item.ProductID, string(item.Size), item.Quantity, item.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	return r.GetItem(ctx, userID, id)
}

func (r *PostgresCartRepository) SetQuantity(ctx context.Context, userID, itemID string, quantity int, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $3, updated_at = $4 WHERE user_id = $1 AND id = $2`,
		userID, itemID, quantity, at,
	)
	if err != nil {
		return false, fmt.Errorf("update cart item: %w", err)
	}
	return affected(res)
}

func (r *PostgresCartRepository) RemoveItem(ctx context.Context, userID, itemID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND id = $2`, userID, itemID)
	if err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	return affected(res)
}

func (r *PostgresCartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
