package product

import (
	"context"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = apperror.New(apperror.KindNotFound, "Product not found")
	ErrInvalidPrice    = apperror.Validation("price must be positive", map[string]string{"price": "must be greater than 0"})
	ErrInvalidName     = apperror.Validation("name is required", map[string]string{"name": "required"})
	ErrInvalidStock    = apperror.Validation("stock must not be negative", map[string]string{"stock": "must be >= 0"})
	ErrDuplicateSize   = apperror.New(apperror.KindValidation, "size listed more than once")
)

type Product struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Slug        string                 `json:"slug"`
	Description string                 `json:"description"`
	Price       decimal.Decimal        `json:"price"`
	CategoryID  string                 `json:"category_id,omitempty"`
	IsFeatured  bool                   `json:"is_featured"`
	Images      []string               `json:"images"`
	Sizes       []inventory.StockEntry `json:"sizes"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// TotalStock sums stock across every size
func (p *Product) TotalStock() int {
	total := 0
	for _, s := range p.Sizes {
		total += s.Stock
	}
	return total
}

// SizeStock is the requested stock for one size in a create or update
type SizeStock struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// Input carries the writable product fields. Products sold without sizes
// pass Stock and leave Sizes empty.
type Input struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  string          `json:"category_id"`
	IsFeatured  bool            `json:"is_featured"`
	Images      []string        `json:"images"`
	Stock       int             `json:"stock"`
	Sizes       []SizeStock     `json:"sizes"`
}

type ListFilter struct {
	Page       int
	Limit      int
	Search     string
	CategoryID string
	Featured   *bool
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

type Repository interface {
	// Create inserts the product and its stock entries
	Create(ctx context.Context, p *Product) error
	// Update writes product fields and upserts the listed stock entries
	Update(ctx context.Context, p *Product) error
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	SetStock(ctx context.Context, entry inventory.StockEntry) error
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	sizes, err := validate(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Product{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        category.GenerateSlug(in.Name),
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		IsFeatured:  in.IsFeatured,
		Images:      nonNil(in.Images),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, e := range sizes {
		e.ProductID = p.ID
		p.Sizes = append(p.Sizes, e)
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, productID string, in Input) (*Product, error) {
	sizes, err := validate(in)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Slug = category.GenerateSlug(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.CategoryID = in.CategoryID
	p.IsFeatured = in.IsFeatured
	p.Images = nonNil(in.Images)
	p.UpdatedAt = s.now()
	p.Sizes = nil
	for _, e := range sizes {
		e.ProductID = p.ID
		p.Sizes = append(p.Sizes, e)
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, productID string) error {
	ok, err := s.repo.SoftDelete(ctx, productID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	return s.repo.Get(ctx, productID)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}

// SetStock overwrites the stock of one size, creating the entry if needed
func (s *Service) SetStock(ctx context.Context, productID, size string, stock int) (*inventory.StockEntry, error) {
	sz, err := inventory.ParseSize(size)
	if err != nil {
		return nil, err
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	if _, err := s.repo.Get(ctx, productID); err != nil {
		return nil, err
	}

	entry := inventory.StockEntry{ProductID: productID, Size: sz, Stock: stock}
	if err := s.repo.SetStock(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// validate checks in and returns the stock entries it describes
func validate(in Input) ([]inventory.StockEntry, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrInvalidName
	}
	if !in.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}

	if len(in.Sizes) == 0 {
		if in.Stock < 0 {
			return nil, ErrInvalidStock
		}
		return []inventory.StockEntry{{Size: inventory.SizeNone, Stock: in.Stock}}, nil
	}

	seen := make(map[inventory.Size]bool, len(in.Sizes))
	entries := make([]inventory.StockEntry, 0, len(in.Sizes))
	for _, s := range in.Sizes {
		size, err := inventory.ParseSize(s.Size)
		if err != nil {
			return nil, err
		}
		if seen[size] {
			return nil, ErrDuplicateSize.WithDetail("size", string(size))
		}
		if s.Stock < 0 {
			return nil, ErrInvalidStock.WithDetail("size", string(size))
		}
		seen[size] = true
		entries = append(entries, inventory.StockEntry{Size: size, Stock: s.Stock})
	}
	return entries, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
