package review

import (
	"context"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinRating        = 1
	MaxRating        = 5
	maxCommentLength = 1000
)

var (
	ErrReviewNotFound  = apperror.New(apperror.KindNotFound, "Review not found")
	ErrAlreadyReviewed = apperror.New(apperror.KindConflict, "You reviewed this product already")
	ErrNotOwner        = apperror.New(apperror.KindForbidden, "You can only update your own reviews")
	ErrInvalidRating   = apperror.Validation("rating must be between 1 and 5", map[string]string{"rating": "1 to 5"})
	ErrCommentTooLong  = apperror.Validation("comment is too long", map[string]string{"comment": "max 1000 characters"})
	ErrProductRequired = apperror.Validation("product_id is required", map[string]string{"product_id": "required"})
)

// Review is one customer's rating of a product. A user reviews a product at most once.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable review fields. ProductID is ignored on update.
type Input struct {
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// Summary is a product's reviews, newest first, with their average rating
type Summary struct {
	ProductID string          `json:"product_id"`
	Count     int             `json:"count"`
	Average   decimal.Decimal `json:"average_rating"`
	Reviews   []Review        `json:"reviews"`
}

type Repository interface {
	Create(ctx context.Context, r *Review) error
	Update(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*Review, error)
	GetByUserAndProduct(ctx context.Context, userID, productID string) (*Review, error)
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
}

// ProductLookup resolves the product a review targets
type ProductLookup interface {
	Get(ctx context.Context, id string) (*product.Product, error)
}

// Service handles review domain operations
type Service struct {
	repo     Repository
	products ProductLookup
	now      func() time.Time
}

func NewService(repo Repository, products ProductLookup) *Service {
	return &Service{repo: repo, products: products, now: time.Now}
}

// ListByProduct returns every review of productID. Unknown products are 404.
func (s *Service) ListByProduct(ctx context.Context, productID string) (*Summary, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []Review{}
	}
	return &Summary{
		ProductID: productID,
		Count:     len(reviews),
		Average:   AverageRating(reviews),
		Reviews:   reviews,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Review, error) {
	return s.repo.Get(ctx, id)
}

// Create records the caller's review of in.ProductID
func (s *Service) Create(ctx context.Context, claims *auth.Claims, in Input) (*Review, error) {
	if claims == nil {
		return nil, apperror.ErrUnauthorized
	}
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return nil, ErrProductRequired
	}
	comment, err := validate(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			return nil, apperror.Validation("product does not exist", map[string]string{"product_id": productID})
		}
		return nil, err
	}

	_, err = s.repo.GetByUserAndProduct(ctx, claims.UserID, productID)
	switch {
	case err == nil:
		return nil, ErrAlreadyReviewed
	case !apperror.IsKind(err, apperror.KindNotFound):
		return nil, err
	}

	now := s.now()
	r := &Review{
		ID:        uuid.New().String(),
		ProductID: productID,
		UserID:    claims.UserID,
		Rating:    in.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Update changes the rating and comment. Only the author or an admin may.
func (s *Service) Update(ctx context.Context, claims *auth.Claims, id string, in Input) (*Review, error) {
	existing, err := s.authorize(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	comment, err := validate(in)
	if err != nil {
		return nil, err
	}

	existing.Rating = in.Rating
	existing.Comment = comment
	existing.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a review. Only the author or an admin may.
func (s *Service) Delete(ctx context.Context, claims *auth.Claims, id string) error {
	if _, err := s.authorize(ctx, claims, id); err != nil {
		return err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReviewNotFound
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, claims *auth.Claims, id string) (*Review, error) {
	if claims == nil {
		return nil, apperror.ErrUnauthorized
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != claims.UserID && !claims.IsAdmin() {
		return nil, ErrNotOwner
	}
	return existing, nil
}

func validate(in Input) (string, error) {
	if in.Rating < MinRating || in.Rating > MaxRating {
		return "", ErrInvalidRating
	}
	comment := strings.TrimSpace(in.Comment)
	if len([]rune(comment)) > maxCommentLength {
		return "", ErrCommentTooLong
	}
	return comment, nil
}

// AverageRating is the mean rating to one decimal place, zero when there are no reviews
func AverageRating(reviews []Review) decimal.Decimal {
	if len(reviews) == 0 {
		return decimal.Zero
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(reviews)))).Round(1)
}
