package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated           = "order.created"
	EventOrderPaid              = "order.paid"
	EventOrderPaymentInitFailed = "order.payment_init_failed"
	EventOrderReleased          = "order.released"
)

type OrderCreated struct {
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id,omitempty"`
	PaymentReference string          `json:"payment_reference"`
	Items            []LineItem      `json:"items"`
	Total            decimal.Decimal `json:"total"`
	CreatedAt        time.Time       `json:"created_at"`
}

type OrderPaid struct {
	OrderID          string          `json:"order_id"`
	PaymentReference string          `json:"payment_reference"`
	Email            string          `json:"email"`
	CustomerName     string          `json:"customer_name"`
	Items            []LineItem      `json:"items"`
	Total            decimal.Decimal `json:"total"`
	PaidAt           time.Time       `json:"paid_at"`
}

type OrderPaymentInitFailed struct {
	OrderID  string    `json:"order_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

type OrderReleased struct {
	OrderID    string    `json:"order_id"`
	ReleasedAt time.Time `json:"released_at"`
}

// PaidEvent builds the payload published after a verified payment
func PaidEvent(o *Order) OrderPaid {
	paidAt := o.UpdatedAt
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}
	name := o.Customer.FirstName
	if o.Customer.LastName != "" {
		name += " " + o.Customer.LastName
	}
	return OrderPaid{
		OrderID:          o.ID,
		PaymentReference: o.PaymentReference,
		Email:            o.Customer.Email,
		CustomerName:     name,
		Items:            o.Items,
		Total:            o.Total,
		PaidAt:           paidAt,
	}
}
