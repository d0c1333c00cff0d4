package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/ec-shop/internal/apperror"
)

// Size is a product variant. SizeNone is used by products sold without sizes.
type Size string

const (
	SizeNone Size = ""
	SizeXS   Size = "XS"
	SizeS    Size = "S"
	SizeM    Size = "M"
	SizeL    Size = "L"
	SizeXL   Size = "XL"
	SizeXXL  Size = "XXL"
)

var knownSizes = map[Size]bool{
	SizeNone: true,
	SizeXS:   true,
	SizeS:    true,
	SizeM:    true,
	SizeL:    true,
	SizeXL:   true,
	SizeXXL:  true,
}

var (
	ErrInsufficientStock = apperror.ErrInsufficientStock
	ErrInvalidQuantity   = apperror.New(apperror.KindValidation, "quantity must be positive")
	ErrInvalidSize       = apperror.New(apperror.KindValidation, "unknown size")
)

// ParseSize normalizes s and rejects unknown sizes
func ParseSize(s string) (Size, error) {
	size := Size(strings.ToUpper(strings.TrimSpace(s)))
	if !knownSizes[size] {
		return SizeNone, ErrInvalidSize.WithDetail("size", s)
	}
	return size, nil
}

func (s Size) Valid() bool { return knownSizes[s] }

// Label is the size as shown to customers
func (s Size) Label() string {
	if s == SizeNone {
		return "one size"
	}
	return string(s)
}

// StockEntry is the available quantity of one (product, size) pair
type StockEntry struct {
	ProductID string `json:"product_id"`
	Size      Size   `json:"size"`
	Stock     int    `json:"stock"`
}

// Ledger is the transactional view of stock entries.
// Implementations must only be used inside a single unit of work.
type Ledger interface {
	// Available returns the current stock or ErrInsufficientStock if no entry exists
	Available(ctx context.Context, productID string, size Size) (int, error)
	// Reserve decrements the entry, guarded by stock >= quantity
	Reserve(ctx context.Context, productID string, size Size, quantity int) error
	// Release puts quantity back on the entry
	Release(ctx context.Context, productID string, size Size, quantity int) error
}

// InsufficientStock builds the error returned when (productID, size) cannot cover a request
func InsufficientStock(productID string, size Size) *apperror.Error {
	return apperror.New(apperror.KindInsufficientStock, fmt.Sprintf("Insufficient stock for %s of product", size.Label())).
		WithDetail("product_id", productID).
		WithDetail("size", string(size))
}

// EnsureAvailable checks that the ledger can cover quantity without mutating it
func EnsureAvailable(ctx context.Context, l Ledger, productID string, size Size, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	stock, err := l.Available(ctx, productID, size)
	if err != nil {
		if apperror.From(err).Kind == apperror.KindInsufficientStock {
			return InsufficientStock(productID, size)
		}
		return err
	}
	if stock < quantity {
		return InsufficientStock(productID, size)
	}
	return nil
}
