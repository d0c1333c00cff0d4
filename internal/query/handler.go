package query

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
)

type Handler struct {
	orders   order.Repository
	products product.Repository
}

func NewHandler(orders order.Repository, products product.Repository) *Handler {
	return &Handler{orders: orders, products: products}
}

// Orders

// ListOrders returns the caller's own orders, or every order for admins
func (h *Handler) ListOrders(ctx context.Context, caller *auth.Claims, filter order.ListFilter) (Page[order.Order], error) {
	if caller == nil {
		return Page[order.Order]{}, apperror.ErrUnauthorized
	}
	if !caller.IsAdmin() {
		filter.UserID = caller.UserID
	}
	filter.Normalize()

	orders, total, err := h.orders.List(ctx, filter)
	if err != nil {
		return Page[order.Order]{}, apperror.Internal(fmt.Errorf("list orders: %w", err))
	}
	return NewPage(orders, filter.Page, filter.Limit, total), nil
}

// GetOrder returns an order visible to caller. Customers only see their own
// non-deleted orders. Guests go through GetGuestOrder.
func (h *Handler) GetOrder(ctx context.Context, caller *auth.Claims, id string) (*order.Order, error) {
	if caller == nil {
		return nil, apperror.ErrUnauthorized
	}
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && (o.UserID != caller.UserID || o.DeletedAt != nil) {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

// GetGuestOrder returns a guest order when reference matches its payment
// reference. The order id alone travels in gateway metadata, so it is not
// enough to read customer details.
func (h *Handler) GetGuestOrder(ctx context.Context, id, reference string) (*order.Order, error) {
	if reference == "" {
		return nil, apperror.ErrUnauthorized
	}
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsGuest() || subtle.ConstantTimeCompare([]byte(o.PaymentReference), []byte(reference)) != 1 {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

// Products

func (h *Handler) ListProducts(ctx context.Context, filter product.ListFilter) (Page[product.Product], error) {
	filter.Normalize()
	products, total, err := h.products.List(ctx, filter)
	if err != nil {
		return Page[product.Product]{}, apperror.Internal(fmt.Errorf("list products: %w", err))
	}
	return NewPage(products, filter.Page, filter.Limit, total), nil
}

func (h *Handler) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	return h.products.Get(ctx, id)
}
