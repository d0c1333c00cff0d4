package cart

import (
	"context"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = apperror.Validation("quantity must be positive", map[string]string{"quantity": "must be > 0"})
	ErrInvalidProduct  = apperror.Validation("product_id is required", map[string]string{"product_id": "required"})
	ErrItemNotFound    = apperror.New(apperror.KindNotFound, "Cart item not found")
	ErrSizeUnavailable = apperror.New(apperror.KindValidation, "size is not offered for this product")
)

// Item is one (product, size) line in a user's cart. Name and price are
// read live from the catalog; only the order snapshots them.
type Item struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Size        inventory.Size  `json:"size"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	UserID string          `json:"user_id"`
	Items  []Item          `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

type Repository interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	GetItem(ctx context.Context, userID, itemID string) (*Item, error)
	// AddItem inserts item or, when (user, product, size) already exists,
	// adds its quantity to the existing line. It returns the stored line.
	AddItem(ctx context.Context, userID string, item Item) (*Item, error)
	SetQuantity(ctx context.Context, userID, itemID string, quantity int, at time.Time) (bool, error)
	RemoveItem(ctx context.Context, userID, itemID string) (bool, error)
	Clear(ctx context.Context, userID string) error
}

// Catalog is the product lookup the cart validates against
type Catalog interface {
	Get(ctx context.Context, productID string) (*product.Product, error)
}

type Service struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
}

func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{repo: repo, catalog: catalog, now: time.Now}
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	items, err := s.repo.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	c := &Cart{UserID: userID, Items: items, Total: decimal.Zero}
	if c.Items == nil {
		c.Items = []Item{}
	}
	for _, item := range c.Items {
		c.Total = c.Total.Add(item.Subtotal())
	}
	return c, nil
}

// AddItem merges quantity into the user's (product, size) line.
// Stock is not reserved here; order placement is the authoritative check.
func (s *Service) AddItem(ctx context.Context, userID, productID, size string, quantity int) (*Item, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	sz, err := inventory.ParseSize(size)
	if err != nil {
		return nil, err
	}

	p, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !offers(p, sz) {
		return nil, ErrSizeUnavailable.WithDetail("size", sz.Label())
	}

	now := s.now()
	return s.repo.AddItem(ctx, userID, Item{
		ID:          uuid.New().String(),
		ProductID:   p.ID,
		ProductName: p.Name,
		Size:        sz,
		Quantity:    quantity,
		Price:       p.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// UpdateItem sets the quantity of an existing line
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	ok, err := s.repo.SetQuantity(ctx, userID, itemID, quantity, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrItemNotFound
	}
	return s.repo.GetItem(ctx, userID, itemID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) error {
	ok, err := s.repo.RemoveItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.repo.Clear(ctx, userID)
}

func offers(p *product.Product, size inventory.Size) bool {
	for _, e := range p.Sizes {
		if e.Size == size {
			return true
		}
	}
	return false
}
