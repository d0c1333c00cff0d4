package notification

import (
	"context"

	"github.com/example/ec-shop/internal/domain/order"
)

// EventPublisher writes an event keyed by aggregate id
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// Publisher hands paid orders to the notifier process through the event topic
type Publisher struct {
	events EventPublisher
}

func NewPublisher(events EventPublisher) *Publisher {
	return &Publisher{events: events}
}

// OrderPaid publishes order.paid keyed by order id
func (p *Publisher) OrderPaid(ctx context.Context, o *order.Order) error {
	return p.events.Publish(ctx, order.EventOrderPaid, o.ID, order.PaidEvent(o))
}
