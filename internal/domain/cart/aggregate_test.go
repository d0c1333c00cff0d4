package cart

import (
	"context"
	"testing"
	"time"

	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	items map[string][]Item // userID -> lines
}

func (r *fakeRepo) Items(_ context.Context, userID string) ([]Item, error) {
	return append([]Item(nil), r.items[userID]...), nil
}

func (r *fakeRepo) GetItem(_ context.Context, userID, itemID string) (*Item, error) {
	for _, it := range r.items[userID] {
		if it.ID == itemID {
			cp := it
			return &cp, nil
		}
	}
	return nil, ErrItemNotFound
}

func (r *fakeRepo) AddItem(_ context.Context, userID string, item Item) (*Item, error) {
	lines := r.items[userID]
	for i := range lines {
		if lines[i].ProductID == item.ProductID && lines[i].Size == item.Size {
			lines[i].Quantity += item.Quantity
			cp := lines[i]
			return &cp, nil
		}
	}
	r.items[userID] = append(lines, item)
	return &item, nil
}

func (r *fakeRepo) SetQuantity(_ context.Context, userID, itemID string, quantity int, at time.Time) (bool, error) {
	lines := r.items[userID]
	for i := range lines {
		if lines[i].ID == itemID {
			lines[i].Quantity = quantity
			lines[i].UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) RemoveItem(_ context.Context, userID, itemID string) (bool, error) {
	lines := r.items[userID]
	for i := range lines {
		if lines[i].ID == itemID {
			r.items[userID] = append(lines[:i], lines[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) Clear(_ context.Context, userID string) error {
	delete(r.items, userID)
	return nil
}

type fakeCatalog map[string]*product.Product

func (c fakeCatalog) Get(_ context.Context, id string) (*product.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return p, nil
}

func newTestCartService() (*Service, *fakeRepo) {
	repo := &fakeRepo{items: map[string][]Item{}}
	catalog := fakeCatalog{
		"sweater": {ID: "sweater", Name: "Sweater", Price: decimal.RequireFromString("20.00"), Sizes: []inventory.StockEntry{
			{ProductID: "sweater", Size: inventory.SizeM, Stock: 5},
			{ProductID: "sweater", Size: inventory.SizeL, Stock: 0},
		}},
		"bag": {ID: "bag", Name: "Tote", Price: decimal.RequireFromString("7.50"), Sizes: []inventory.StockEntry{
			{ProductID: "bag", Size: inventory.SizeNone, Stock: 3},
		}},
	}
	return NewService(repo, catalog), repo
}

// ============================================
// AddItem Tests
// ============================================

func TestService_AddItem_Success(t *testing.T) {
	service, repo := newTestCartService()

	item, err := service.AddItem(context.Background(), "user-1", "sweater", "m", 2)

	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, inventory.SizeM, item.Size)
	assert.Equal(t, "Sweater", item.ProductName)
	assert.Len(t, repo.items["user-1"], 1)
}

func TestService_AddItem_MergesSameProductAndSize(t *testing.T) {
	service, repo := newTestCartService()

	_, err := service.AddItem(context.Background(), "user-1", "sweater", "M", 2)
	require.NoError(t, err)
	item, err := service.AddItem(context.Background(), "user-1", "sweater", "M", 3)
	require.NoError(t, err)
	_, err = service.AddItem(context.Background(), "user-1", "sweater", "L", 1)
	require.NoError(t, err)

	assert.Equal(t, 5, item.Quantity)
	assert.Len(t, repo.items["user-1"], 2)
}

func TestService_AddItem_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		size      string
		quantity  int
		want      error
	}{
		{"empty product", "", "M", 1, ErrInvalidProduct},
		{"zero quantity", "sweater", "M", 0, ErrInvalidQuantity},
		{"negative quantity", "sweater", "M", -1, ErrInvalidQuantity},
		{"unknown size", "sweater", "XXXL", 1, inventory.ErrInvalidSize},
		{"size not offered", "sweater", "XS", 1, ErrSizeUnavailable},
		{"sized bag", "bag", "M", 1, ErrSizeUnavailable},
		{"unknown product", "nope", "M", 1, product.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repo := newTestCartService()

			_, err := service.AddItem(context.Background(), "user-1", tt.productID, tt.size, tt.quantity)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, repo.items["user-1"])
		})
	}
}

// ============================================
// Update / Remove / Clear Tests
// ============================================

func TestService_UpdateItem_SetsQuantity(t *testing.T) {
	service, _ := newTestCartService()
	added, err := service.AddItem(context.Background(), "user-1", "bag", "", 2)
	require.NoError(t, err)

	updated, err := service.UpdateItem(context.Background(), "user-1", added.ID, 1)

	require.NoError(t, err)
	assert.Equal(t, 1, updated.Quantity)
}

func TestService_UpdateItem_OtherUsersItem(t *testing.T) {
	service, _ := newTestCartService()
	added, err := service.AddItem(context.Background(), "user-1", "bag", "", 2)
	require.NoError(t, err)

	_, err = service.UpdateItem(context.Background(), "user-2", added.ID, 1)

	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_RemoveItem(t *testing.T) {
	service, repo := newTestCartService()
	added, err := service.AddItem(context.Background(), "user-1", "bag", "", 2)
	require.NoError(t, err)

	require.NoError(t, service.RemoveItem(context.Background(), "user-1", added.ID))
	assert.Empty(t, repo.items["user-1"])
	assert.ErrorIs(t, service.RemoveItem(context.Background(), "user-1", added.ID), ErrItemNotFound)
}

func TestService_Get_ComputesTotal(t *testing.T) {
	service, _ := newTestCartService()
	_, err := service.AddItem(context.Background(), "user-1", "sweater", "M", 2)
	require.NoError(t, err)
	_, err = service.AddItem(context.Background(), "user-1", "bag", "", 1)
	require.NoError(t, err)

	c, err := service.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
	assert.True(t, c.Total.Equal(decimal.RequireFromString("47.50")), c.Total.String())
}

func TestService_Clear(t *testing.T) {
	service, _ := newTestCartService()
	_, err := service.AddItem(context.Background(), "user-1", "bag", "", 1)
	require.NoError(t, err)

	require.NoError(t, service.Clear(context.Background(), "user-1"))

	c, err := service.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.Total.IsZero())
}
