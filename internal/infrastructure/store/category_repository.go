package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-shop/internal/domain/category"
)

const categoryColumns = `id, name, slug, description, parent_id, sort_order, created_at, updated_at`

// PostgresCategoryRepository implements category.Repository
type PostgresCategoryRepository struct {
	db *sql.DB
}

func NewPostgresCategoryRepository(db *sql.DB) *PostgresCategoryRepository {
	return &PostgresCategoryRepository{db: db}
}

func scanCategory(row rowScanner) (*category.Category, error) {
	var (
		c        category.Category
		parentID sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &parentID, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ParentID = parentID.String
	return &c, nil
}

func (r *PostgresCategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Slug, c.Description, nullString(c.ParentID), c.SortOrder, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, category.ErrSlugTaken.Message, "insert category")
	}
	return nil
}

func (r *PostgresCategoryRepository) Update(ctx context.Context, c *category.Category) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3, description = $4, parent_id = $5, sort_order = $6, updated_at = $7
		 WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.Description, nullString(c.ParentID), c.SortOrder, c.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, category.ErrSlugTaken.Message, "update category")
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if !ok {
		return category.ErrCategoryNotFound
	}
	return nil
}

func (r *PostgresCategoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	return affected(res)
}

func (r *PostgresCategoryRepository) get(ctx context.Context, where string, arg any) (*category.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, category.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *PostgresCategoryRepository) Get(ctx context.Context, id string) (*category.Category, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *PostgresCategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Category, error) {
	return r.get(ctx, "slug = $1", slug)
}

func (r *PostgresCategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []category.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
