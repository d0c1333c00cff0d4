package notification

import (
	"context"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mailer sends the payment confirmation
type Mailer interface {
	SendOrderConfirmation(to, customerName, orderID string, total decimal.Decimal, items []email.OrderItem) error
}

// Deduper claims ids so each is processed once
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer  Mailer
	dedup   Deduper
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, dedup Deduper, logger *zap.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		mailer:  mailer,
		dedup:   dedup,
		logger:  logger.Named("notifier"),
		metrics: m,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, env kafka.Envelope) error {
	// Only process OrderPaid events
	if env.EventType != order.EventOrderPaid {
		return nil
	}

	e, err := kafka.UnwrapPayload[order.OrderPaid](env)
	if err != nil {
		h.logger.Warn("malformed order.paid event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	return h.handleOrderPaid(ctx, env.EventID, e)
}

func (h *Handler) handleOrderPaid(ctx context.Context, eventID string, e order.OrderPaid) error {
	log := h.logger.With(zap.String("event_id", eventID), zap.String("order_id", e.OrderID))

	// the same payment may be published twice under different event ids
	claims := []string{eventID, "paid:" + e.OrderID}
	var held []string
	for _, id := range claims {
		ok, err := h.dedup.Claim(ctx, id)
		if err != nil {
			h.release(ctx, held, log)
			return err
		}
		if !ok {
			h.release(ctx, held, log)
			h.metrics.Notification("order_paid", "duplicate")
			log.Info("duplicate order.paid skipped", zap.String("claim", id))
			return nil
		}
		held = append(held, id)
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		items[i] = email.OrderItem{
			Name:     item.ProductName,
			Size:     string(item.Size),
			Quantity: item.Quantity,
			Price:    item.Price,
		}
	}

	if err := h.mailer.SendOrderConfirmation(e.Email, e.CustomerName, e.OrderID, e.Total, items); err != nil {
		h.metrics.Notification("order_paid", "failure")
		h.release(ctx, held, log)
		log.Error("send confirmation failed", zap.String("email", e.Email), zap.Error(err))
		return err
	}

	h.metrics.Notification("order_paid", "success")
	log.Info("order confirmation sent", zap.String("email", e.Email))
	return nil
}

func (h *Handler) release(ctx context.Context, ids []string, log *zap.Logger) {
	for _, id := range ids {
		if err := h.dedup.Release(ctx, id); err != nil {
			log.Warn("release dedup claim failed", zap.String("claim", id), zap.Error(err))
		}
	}
}
