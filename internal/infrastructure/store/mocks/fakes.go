package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/payment/paystack"
)

// FakeGateway records charge requests and returns a canned charge
type FakeGateway struct {
	mu    sync.Mutex
	Err   error
	Calls []paystack.ChargeRequest
}

func (g *FakeGateway) InitializeCharge(_ context.Context, req paystack.ChargeRequest) (*paystack.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, req)
	if g.Err != nil {
		return nil, g.Err
	}
	return &paystack.Charge{
		AuthorizationURL: "https://checkout.example.com/" + req.Reference,
		AccessCode:       "access-" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *FakeGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// FakeNotifier records paid orders
type FakeNotifier struct {
	mu    sync.Mutex
	Err   error
	Calls []string
}

func (n *FakeNotifier) OrderPaid(_ context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, o.ID)
	return n.Err
}

func (n *FakeNotifier) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Calls)
}

// PublishCall records parameters passed to Publish
type PublishCall struct {
	EventType string
	Key       string
	Payload   any
}

// FakePublisher records published events
type FakePublisher struct {
	mu    sync.Mutex
	Err   error
	Calls []PublishCall
}

func (p *FakePublisher) Publish(_ context.Context, eventType, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, PublishCall{EventType: eventType, Key: key, Payload: payload})
	return p.Err
}

// Types returns the event types published so far, in order
func (p *FakePublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.EventType
	}
	return out
}
