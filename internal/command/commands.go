package command

import (
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/shopspring/decimal"
)

// Order Commands
type PlaceOrder struct {
	Customer order.Customer   `json:"customer"`
	Items    []PlaceOrderItem `json:"items"`
}

type PlaceOrderItem struct {
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// PlaceOrderResult is returned once the order is stored and a charge initialized
type PlaceOrderResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	OrderID          string `json:"order_id"`
}

// WebhookAck is the body acknowledged to the gateway
type WebhookAck struct {
	Message string `json:"message"`
}

const (
	AckPaymentProcessed        = "Payment processed"
	AckPaymentAlreadyProcessed = "Payment already processed"
	AckEventIgnored            = "Event ignored"
)
