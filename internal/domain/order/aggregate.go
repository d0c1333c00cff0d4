package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "Pending"
	DeliveryShipped   DeliveryStatus = "Shipped"
	DeliveryDelivered DeliveryStatus = "Delivered"
	DeliveryCancelled DeliveryStatus = "Cancelled"
)

var (
	ErrOrderNotFound      = apperror.New(apperror.KindNotFound, "Order not found")
	ErrEmptyOrder         = apperror.Validation("order must have at least one item", map[string]string{"items": "required"})
	ErrInvalidStatus      = apperror.New(apperror.KindValidation, "invalid order status transition")
	ErrOrderCancelled     = apperror.New(apperror.KindValidation, "order is already cancelled")
	ErrOrderDelivered     = apperror.New(apperror.KindValidation, "order is already delivered")
	ErrEmptyStatusUpdate  = apperror.New(apperror.KindValidation, "no status fields to update")
	ErrUnknownStatusValue = apperror.New(apperror.KindValidation, "unknown status value")
)

// validTransitions defines allowed delivery state transitions
var validTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:   {DeliveryShipped, DeliveryCancelled},
	DeliveryShipped:   {DeliveryDelivered},
	DeliveryDelivered: {}, // terminal state
	DeliveryCancelled: {}, // terminal state
}

// CanTransitionTo checks if the delivery status can move to target
func (s DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, a := range allowed {
		if a == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func transitionError(from, to DeliveryStatus) error {
	switch from {
	case DeliveryCancelled:
		return ErrOrderCancelled
	case DeliveryDelivered:
		return ErrOrderDelivered
	default:
		return apperror.New(apperror.KindValidation, fmt.Sprintf("%s: cannot transition from %s to %s", ErrInvalidStatus.Message, from, to))
	}
}

// ParsePaymentStatus accepts any casing of a known payment status
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	for _, v := range []PaymentStatus{PaymentUnpaid, PaymentPending, PaymentPaid} {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", ErrUnknownStatusValue.WithDetail("payment_status", s)
}

// ParseDeliveryStatus accepts any casing of a known delivery status
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	for _, v := range []DeliveryStatus{DeliveryPending, DeliveryShipped, DeliveryDelivered, DeliveryCancelled} {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", ErrUnknownStatusValue.WithDetail("delivery_status", s)
}

// Customer holds the contact and shipping fields captured with the order
type Customer struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	WhatsappPhone string `json:"whatsapp_phone,omitempty"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	Notes         string `json:"notes,omitempty"`
}

// LineItem is snapshotted at purchase time and never changes afterwards
type LineItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Size        inventory.Size  `json:"size"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID               string          `json:"id"`
	PaymentReference string          `json:"payment_reference"`
	UserID           string          `json:"user_id,omitempty"`
	Customer         Customer        `json:"customer"`
	Items            []LineItem      `json:"items"`
	Total            decimal.Decimal `json:"total"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	DeliveryStatus   DeliveryStatus  `json:"delivery_status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsGuest reports whether the order was placed without an account
func (o *Order) IsGuest() bool { return o.UserID == "" }

// AmountMinor returns the total in minor currency units (kobo), rounded the
// same way the NUMERIC(12,2) columns store it
func (o *Order) AmountMinor() int64 {
	return o.Total.Round(2).Shift(2).IntPart()
}

// Total sums price x quantity over items
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// NewPaymentReference generates the gateway-facing reference for an order
func NewPaymentReference() string {
	return "ORD-" + ulid.Make().String()
}

// Validate checks customer fields and line items, reporting every failing field
func Validate(customer Customer, items []LineItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}

	details := map[string]string{}
	if strings.TrimSpace(customer.FirstName) == "" {
		details["first_name"] = "required"
	}
	if email := strings.TrimSpace(customer.Email); email == "" {
		details["email"] = "required"
	} else if !strings.Contains(email, "@") {
		details["email"] = "must be a valid email address"
	}
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case item.ProductID == "":
			details[field+".product_id"] = "required"
		case item.Quantity <= 0:
			details[field+".quantity"] = "must be a positive integer"
		case item.Price.IsNegative():
			details[field+".price"] = "must not be negative"
		case !item.Price.Equal(item.Price.Round(2)):
			details[field+".price"] = "at most 2 decimal places"
		case !item.Size.Valid():
			details[field+".size"] = "unknown size"
		}
	}
	if len(details) > 0 {
		return apperror.Validation("invalid order", details)
	}
	return nil
}

// New builds an unpaid order with generated identifiers and a computed total
func New(userID string, customer Customer, items []LineItem, now time.Time) (*Order, error) {
	if err := Validate(customer, items); err != nil {
		return nil, err
	}

	orderID := uuid.New().String()
	lines := make([]LineItem, len(items))
	for i, item := range items {
		item.ID = uuid.New().String()
		item.OrderID = orderID
		lines[i] = item
	}

	return &Order{
		ID:               orderID,
		PaymentReference: NewPaymentReference(),
		UserID:           userID,
		Customer:         customer,
		Items:            lines,
		Total:            Total(lines),
		PaymentStatus:    PaymentUnpaid,
		DeliveryStatus:   DeliveryPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// StatusUpdate enumerates the fields an admin may patch. Nil fields are left alone.
type StatusUpdate struct {
	PaymentStatus  *PaymentStatus  `json:"payment_status,omitempty"`
	DeliveryStatus *DeliveryStatus `json:"delivery_status,omitempty"`
}

func (u StatusUpdate) IsEmpty() bool {
	return u.PaymentStatus == nil && u.DeliveryStatus == nil
}

// Apply validates u against the current state and mutates o
func (o *Order) Apply(u StatusUpdate, now time.Time) error {
	if u.IsEmpty() {
		return ErrEmptyStatusUpdate
	}
	if u.DeliveryStatus != nil && *u.DeliveryStatus != o.DeliveryStatus {
		if !o.DeliveryStatus.CanTransitionTo(*u.DeliveryStatus) {
			return transitionError(o.DeliveryStatus, *u.DeliveryStatus)
		}
		o.DeliveryStatus = *u.DeliveryStatus
	}
	if u.PaymentStatus != nil && *u.PaymentStatus != o.PaymentStatus {
		o.PaymentStatus = *u.PaymentStatus
		if o.PaymentStatus == PaymentPaid {
			paidAt := now
			o.PaidAt = &paidAt
		}
	}
	o.UpdatedAt = now
	return nil
}

// ListFilter selects orders for the read side
type ListFilter struct {
	Page           int
	Limit          int
	Search         string
	PaymentStatus  PaymentStatus
	DeliveryStatus DeliveryStatus
	// UserID restricts to one customer's non-deleted orders when set
	UserID string
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize applies paging defaults and bounds
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

// Repository is the non-transactional order storage used outside order creation
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	// MarkPaid moves an order to Paid unless it already is. It reports whether a row changed.
	MarkPaid(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkPending moves an Unpaid order to Pending once a charge was initialized
	MarkPending(ctx context.Context, id string) (bool, error)
	// UpdateStatus writes only the non-nil fields of u, guarded by the delivery
	// status the caller validated against. It reports whether a row changed.
	UpdateStatus(ctx context.Context, id string, u StatusUpdate, expected DeliveryStatus, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, id, userID string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// ListExpired returns undelivered orders in the given payment status created before cutoff
	ListExpired(ctx context.Context, status PaymentStatus, cutoff time.Time, limit int) ([]Order, error)
}
