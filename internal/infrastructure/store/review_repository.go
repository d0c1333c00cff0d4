package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-shop/internal/domain/review"
)

const reviewColumns = `r.id, r.product_id, r.user_id, COALESCE(u.name, ''), r.rating, r.comment, r.created_at, r.updated_at`

const reviewFrom = ` FROM reviews r LEFT JOIN users u ON u.id = r.user_id`

// PostgresReviewRepository implements review.Repository
type PostgresReviewRepository struct {
	db *sql.DB
}

func NewPostgresReviewRepository(db *sql.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

func scanReview(row rowScanner) (*review.Review, error) {
	var rv review.Review
	if err := row.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *PostgresReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (id, product_id, user_id, rating, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rv.ID, rv.ProductID, rv.UserID, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, review.ErrAlreadyReviewed.Message, "insert review")
	}
	return nil
}

func (r *PostgresReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reviews SET rating = $2, comment = $3, updated_at = $4 WHERE id = $1`,
		rv.ID, rv.Rating, rv.Comment, rv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if !ok {
		return review.ErrReviewNotFound
	}
	return nil
}

func (r *PostgresReviewRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete review: %w", err)
	}
	return affected(res)
}

func (r *PostgresReviewRepository) get(ctx context.Context, where string, args ...any) (*review.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+reviewFrom+` WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, review.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

func (r *PostgresReviewRepository) Get(ctx context.Context, id string) (*review.Review, error) {
	return r.get(ctx, "r.id = $1", id)
}

func (r *PostgresReviewRepository) GetByUserAndProduct(ctx context.Context, userID, productID string) (*review.Review, error) {
	return r.get(ctx, "r.user_id = $1 AND r.product_id = $2", userID, productID)
}

func (r *PostgresReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reviewColumns+reviewFrom+` WHERE r.product_id = $1 ORDER BY r.created_at DESC, r.id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []review.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *rv)
	}
	return out, rows.Err()
}
