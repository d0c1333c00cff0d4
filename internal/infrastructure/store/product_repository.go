package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/lib/pq"
)

const productColumns = `id, name, slug, description, price, category_id, is_featured, images, created_at, updated_at`

// PostgresProductRepository implements product.Repository
type PostgresProductRepository struct {
	db *sql.DB
}

func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func scanProduct(row rowScanner) (*product.Product, error) {
	var (
		p          product.Product
		categoryID sql.NullString
		images     pq.StringArray
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &categoryID,
		&p.IsFeatured, &images, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CategoryID = categoryID.String
	p.Images = []string(images)
	if p.Images == nil {
		p.Images = []string{}
	}
	return &p, nil
}

func (r *PostgresProductRepository) Create(ctx context.Context, p *product.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, name, slug, description, price, category_id, is_featured, images, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, nullString(p.CategoryID), p.IsFeatured,
		pq.Array(p.Images), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "Product with this name already exists", "insert product")
	}
	if err := upsertSizes(ctx, tx, p.Sizes); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresProductRepository) Update(ctx context.Context, p *product.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET name = $2, slug = $3, description = $4, price = $5, category_id = $6,
			is_featured = $7, images = $8, updated_at = $9
		 WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, nullString(p.CategoryID), p.IsFeatured,
		pq.Array(p.Images), p.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "Product with this name already exists", "update product")
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if !ok {
		return product.ErrProductNotFound
	}
	if err := upsertSizes(ctx, tx, p.Sizes); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertSizes(ctx context.Context, q querier, entries []inventory.StockEntry) error {
	for _, e := range entries {
		_, err := q.ExecContext(ctx,
			`INSERT INTO product_sizes (product_id, size, stock) VALUES ($1, $2, $3)
			 ON CONFLICT (product_id, size) DO UPDATE SET stock = EXCLUDED.stock, updated_at = now()`,
			e.ProductID, string(e.Size), e.Stock,
		)
		if err != nil {
			return fmt.Errorf("upsert stock %s/%s: %w", e.ProductID, e.Size, err)
		}
	}
	return nil
}

func (r *PostgresProductRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return affected(res)
}

func (r *PostgresProductRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	sizes, err := r.loadSizes(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Sizes = sizes[id]
	return p, nil
}

func (r *PostgresProductRepository) loadSizes(ctx context.Context, ids []string) (map[string][]inventory.StockEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, size, stock FROM product_sizes WHERE product_id = ANY($1)
		 ORDER BY product_id, array_position(ARRAY['', 'XS', 'S', 'M', 'L', 'XL', 'XXL'], size)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("load sizes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]inventory.StockEntry, len(ids))
	for rows.Next() {
		var (
			e    inventory.StockEntry
			size string
		)
		if err := rows.Scan(&e.ProductID, &size, &e.Stock); err != nil {
			return nil, fmt.Errorf("scan size: %w", err)
		}
		e.Size = inventory.Size(size)
		out[e.ProductID] = append(out[e.ProductID], e)
	}
	return out, rows.Err()
}

func (r *PostgresProductRepository) List(ctx context.Context, f product.ListFilter) ([]product.Product, int, error) {
	f.Normalize()
	conds := []string{"deleted_at IS NULL"}
	var args []any
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.Featured != nil {
		args = append(args, *f.Featured)
		conds = append(conds, fmt.Sprintf("is_featured = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			productColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []product.Product{}
	var ids []string
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	if len(ids) > 0 {
		sizes, err := r.loadSizes(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range products {
			products[i].Sizes = sizes[products[i].ID]
		}
	}
	return products, total, nil
}

func (r *PostgresProductRepository) SetStock(ctx context.Context, e inventory.StockEntry) error {
	return upsertSizes(ctx, r.db, []inventory.StockEntry{e})
}
