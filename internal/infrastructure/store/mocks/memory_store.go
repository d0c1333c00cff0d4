package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/infrastructure/store"
)

// StockKey addresses one stock entry
type StockKey struct {
	ProductID string
	Size      inventory.Size
}

// MemoryStore is an in-memory implementation of store.UnitOfWork and
// order.Repository. Reserve applies the same stock >= n guard as the SQL
// update and holds the decrement until Commit or Rollback.
type MemoryStore struct {
	mu       sync.Mutex
	stock    map[StockKey]int
	products map[string]string
	orders   map[string]*order.Order

	// Errors injected into the next calls
	BeginErr       error
	CommitErr      error
	InsertErr      error
	MarkPaidErr    error
	MarkPendingErr error

	// For tracking calls in tests
	BeginCalls       int
	CommitCalls      int
	RollbackCalls    int
	MarkPaidCalls    []MarkPaidCall
	MarkPendingCalls []string
}

// MarkPaidCall records parameters passed to MarkPaid
type MarkPaidCall struct {
	OrderID string
	At      time.Time
	Changed bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stock:    make(map[StockKey]int),
		products: make(map[string]string),
		orders:   make(map[string]*order.Order),
	}
}

var _ store.UnitOfWork = (*MemoryStore)(nil)
var _ order.Repository = (*MemoryStore)(nil)

// AddProduct registers a product with its per-size stock
func (m *MemoryStore) AddProduct(id, name string, stock map[inventory.Size]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = name
	for size, n := range stock {
		m.stock[StockKey{id, size}] = n
	}
}

// Stock returns the committed stock of an entry
func (m *MemoryStore) Stock(productID string, size inventory.Size) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[StockKey{productID, size}]
}

// PutOrder seeds an order directly
func (m *MemoryStore) PutOrder(o order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(&o)
}

// Orders returns a snapshot of every stored order
func (m *MemoryStore) Orders() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *cloneOrder(o))
	}
	return out
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.LineItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

// ============================================
// Unit of work
// ============================================

func (m *MemoryStore) Begin(context.Context) (store.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BeginCalls++
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	return &memTx{m: m}, nil
}

type stockDelta struct {
	key StockKey
	n   int
}

type cancelled struct {
	orderID string
	prev    order.DeliveryStatus
	prevAt  time.Time
}

type memTx struct {
	m       *MemoryStore
	deltas  []stockDelta
	cancels []cancelled
	inserts []*order.Order
	done    bool
}

func (t *memTx) Available(_ context.Context, productID string, size inventory.Size) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	n, ok := t.m.stock[StockKey{productID, size}]
	if !ok {
		return 0, inventory.InsufficientStock(productID, size)
	}
	return n, nil
}

func (t *memTx) Reserve(_ context.Context, productID string, size inventory.Size, quantity int) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	key := StockKey{productID, size}
	n, ok := t.m.stock[key]
	if !ok || n < quantity {
		return inventory.InsufficientStock(productID, size)
	}
	t.m.stock[key] = n - quantity
	t.deltas = append(t.deltas, stockDelta{key, -quantity})
	return nil
}

func (t *memTx) Release(_ context.Context, productID string, size inventory.Size, quantity int) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	key := StockKey{productID, size}
	t.m.stock[key] += quantity
	t.deltas = append(t.deltas, stockDelta{key, quantity})
	return nil
}

func (t *memTx) ProductName(_ context.Context, productID string) (string, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	name, ok := t.m.products[productID]
	if !ok {
		return "", apperror.New(apperror.KindNotFound, "Product not found").WithDetail("product_id", productID)
	}
	return name, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *order.Order) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.InsertErr != nil {
		return t.m.InsertErr
	}
	t.inserts = append(t.inserts, cloneOrder(o))
	return nil
}

func (t *memTx) CancelUnpaid(_ context.Context, orderID string, expected order.PaymentStatus, at time.Time) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	o, ok := t.m.orders[orderID]
	if !ok || expected == order.PaymentPaid || o.PaymentStatus != expected || o.DeliveryStatus != order.DeliveryPending {
		return false, nil
	}
	t.cancels = append(t.cancels, cancelled{orderID: orderID, prev: o.DeliveryStatus, prevAt: o.UpdatedAt})
	o.DeliveryStatus = order.DeliveryCancelled
	o.UpdatedAt = at
	return true, nil
}

func (t *memTx) Commit() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return apperror.New(apperror.KindInternal, "transaction already closed")
	}
	t.m.CommitCalls++
	if t.m.CommitErr != nil {
		t.undo()
		return t.m.CommitErr
	}
	for _, o := range t.inserts {
		t.m.orders[o.ID] = o
	}
	t.done = true
	return nil
}

func (t *memTx) Rollback() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return nil
	}
	t.m.RollbackCalls++
	t.undo()
	return nil
}

// undo reverts applied stock and cancellations. Caller holds the lock.
func (t *memTx) undo() {
	for i := len(t.deltas) - 1; i >= 0; i-- {
		d := t.deltas[i]
		t.m.stock[d.key] -= d.n
	}
	for _, c := range t.cancels {
		if o, ok := t.m.orders[c.orderID]; ok {
			o.DeliveryStatus = c.prev
			o.UpdatedAt = c.prevAt
		}
	}
	t.deltas, t.cancels, t.inserts = nil, nil, nil
	t.done = true
}

// ============================================
// Order repository
// ============================================

func (m *MemoryStore) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	f.Normalize()
	m.mu.Lock()
	var matched []order.Order
	for _, o := range m.orders {
		if matches(o, f) {
			cp := cloneOrder(o)
			cp.Items = nil
			matched = append(matched, *cp)
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return append([]order.Order{}, matched[start:end]...), total, nil
}

func matches(o *order.Order, f order.ListFilter) bool {
	if f.UserID != "" && (o.UserID != f.UserID || o.DeletedAt != nil) {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.DeliveryStatus != "" && o.DeliveryStatus != f.DeliveryStatus {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	c := o.Customer
	for _, field := range []string{c.FirstName, c.LastName, c.Email, c.Phone, o.PaymentReference} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) MarkPaid(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkPaidErr != nil {
		return false, m.MarkPaidErr
	}
	o, ok := m.orders[id]
	changed := ok && o.PaymentStatus != order.PaymentPaid
	if changed {
		o.PaymentStatus = order.PaymentPaid
		paidAt := at
		o.PaidAt = &paidAt
		o.UpdatedAt = at
	}
	m.MarkPaidCalls = append(m.MarkPaidCalls, MarkPaidCall{OrderID: id, At: at, Changed: changed})
	return changed, nil
}

func (m *MemoryStore) MarkPending(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkPendingCalls = append(m.MarkPendingCalls, id)
	if m.MarkPendingErr != nil {
		return false, m.MarkPendingErr
	}
	o, ok := m.orders[id]
	if !ok || o.PaymentStatus != order.PaymentUnpaid {
		return false, nil
	}
	o.PaymentStatus = order.PaymentPending
	return true, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, u order.StatusUpdate, expected order.DeliveryStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.DeliveryStatus != expected {
		return false, nil
	}
	if u.DeliveryStatus != nil {
		o.DeliveryStatus = *u.DeliveryStatus
	}
	if u.PaymentStatus != nil {
		o.PaymentStatus = *u.PaymentStatus
		if o.PaymentStatus == order.PaymentPaid && o.PaidAt == nil {
			paidAt := at
			o.PaidAt = &paidAt
		}
	}
	o.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) SoftDelete(_ context.Context, id, userID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.UserID != userID || o.DeletedAt != nil {
		return false, nil
	}
	deletedAt := at
	o.DeletedAt = &deletedAt
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[id]
	delete(m.orders, id)
	return ok, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, status order.PaymentStatus, cutoff time.Time, limit int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.PaymentStatus == status && o.DeliveryStatus == order.DeliveryPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
