package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/inventory"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/example/ec-shop/internal/payment/paystack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/example/ec-shop/internal/command")

// Gateway initializes payment transactions
type Gateway interface {
	InitializeCharge(ctx context.Context, req paystack.ChargeRequest) (*paystack.Charge, error)
}

// Notifier tells the customer their order was paid
type Notifier interface {
	OrderPaid(ctx context.Context, o *order.Order) error
}

// EventPublisher emits order lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// Config carries the gateway settings the orchestrator needs
type Config struct {
	WebhookSecret string
	CallbackURL   string
	CancelURL     string
}

type Handler struct {
	uow      store.UnitOfWork
	orders   order.Repository
	gateway  Gateway
	notifier Notifier
	events   EventPublisher
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewHandler wires the order workflow. events, logger and m may be nil.
func NewHandler(
	uow store.UnitOfWork,
	orders order.Repository,
	gateway Gateway,
	notifier Notifier,
	events EventPublisher,
	cfg Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		uow:      uow,
		orders:   orders,
		gateway:  gateway,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		logger:   logger.Named("orders"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handler) publish(ctx context.Context, eventType, key string, payload any) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, eventType, key, payload); err != nil {
		h.log(ctx).Warn("publish event failed",
			zap.String("event_type", eventType),
			zap.String("order_id", key),
			zap.Error(err),
		)
	}
}

// ============================================
// Order creation
// ============================================

// PlaceOrder validates stock, stores the order with its line items and
// reserves stock in one transaction, then initializes a charge.
// caller is nil for guest checkout.
func (h *Handler) PlaceOrder(ctx context.Context, caller *auth.Claims, cmd PlaceOrder) (*PlaceOrderResult, error) {
	ctx, span := tracer.Start(ctx, "command.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("order.item_count", len(cmd.Items)))

	o, err := h.newOrder(caller, cmd)
	if err != nil {
		h.metrics.OrderCreated("invalid")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if err := h.persist(ctx, o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist order")
		switch {
		case apperror.IsKind(err, apperror.KindInsufficientStock):
			h.metrics.OrderCreated("insufficient_stock")
		case apperror.IsKind(err, apperror.KindTransactionAborted):
			h.metrics.OrderCreated("aborted")
			h.log(ctx).Error("order transaction aborted", zap.String("order_id", o.ID), zap.Error(err))
		default:
			h.metrics.OrderCreated("rejected")
		}
		return nil, err
	}

	h.publish(ctx, order.EventOrderCreated, o.ID, order.OrderCreated{
		OrderID:          o.ID,
		UserID:           o.UserID,
		PaymentReference: o.PaymentReference,
		Items:            o.Items,
		Total:            o.Total,
		CreatedAt:        o.CreatedAt,
	})

	charge, err := h.gateway.InitializeCharge(ctx, h.chargeRequest(o))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize charge")
		h.metrics.OrderCreated("gateway_failed")
		h.log(ctx).Error("payment initialization failed",
			zap.String("order_id", o.ID),
			zap.String("reference", o.PaymentReference),
			zap.Error(err),
		)
		h.publish(ctx, order.EventOrderPaymentInitFailed, o.ID, order.OrderPaymentInitFailed{
			OrderID:  o.ID,
			Reason:   err.Error(),
			FailedAt: h.now(),
		})
		if !apperror.IsKind(err, apperror.KindGatewayInitFailed) {
			err = apperror.Wrap(apperror.KindGatewayInitFailed, apperror.ErrGatewayInitializationFailed.Message, err)
		}
		return nil, apperror.From(err).WithDetail("order_id", o.ID)
	}

	if _, err := h.orders.MarkPending(ctx, o.ID); err != nil {
		h.log(ctx).Warn("mark order pending failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	h.metrics.OrderCreated("success")

	return &PlaceOrderResult{
		AuthorizationURL: charge.AuthorizationURL,
		Reference:        o.PaymentReference,
		OrderID:          o.ID,
	}, nil
}

func (h *Handler) newOrder(caller *auth.Claims, cmd PlaceOrder) (*order.Order, error) {
	items := make([]order.LineItem, len(cmd.Items))
	for i, it := range cmd.Items {
		size, err := inventory.ParseSize(it.Size)
		if err != nil {
			return nil, apperror.Validation("invalid order", map[string]string{
				fmt.Sprintf("items[%d].size", i): "unknown size",
			})
		}
		items[i] = order.LineItem{
			ProductID: it.ProductID,
			Size:      size,
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
	}

	var userID string
	if caller != nil {
		userID = caller.UserID
	}
	return order.New(userID, cmd.Customer, items, h.now())
}

// persist runs the create transaction. Domain errors pass through and
// storage failures become TransactionAborted.
func (h *Handler) persist(ctx context.Context, o *order.Order) error {
	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return aborted(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range o.Items {
		if err := inventory.EnsureAvailable(ctx, tx, item.ProductID, item.Size, item.Quantity); err != nil {
			return domainOrAborted(err)
		}
	}

	for i := range o.Items {
		name, err := tx.ProductName(ctx, o.Items[i].ProductID)
		if err != nil {
			return domainOrAborted(err)
		}
		o.Items[i].ProductName = name
	}

	if err := tx.InsertOrder(ctx, o); err != nil {
		return domainOrAborted(err)
	}

	for _, item := range o.Items {
		if err := tx.Reserve(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
			return domainOrAborted(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return aborted(err)
	}
	return nil
}

func aborted(err error) error {
	return apperror.Wrap(apperror.KindTransactionAborted, apperror.ErrTransactionAborted.Message, err)
}

func domainOrAborted(err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind != apperror.KindInternal {
		return appErr
	}
	return aborted(err)
}

func (h *Handler) chargeRequest(o *order.Order) paystack.ChargeRequest {
	items := make([]paystack.MetadataItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = paystack.MetadataItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price.StringFixed(2),
			Size:        string(item.Size),
		}
	}

	name := o.Customer.FirstName
	if o.Customer.LastName != "" {
		name += " " + o.Customer.LastName
	}

	return paystack.ChargeRequest{
		Email:       o.Customer.Email,
		Amount:      o.AmountMinor(),
		Reference:   o.PaymentReference,
		CallbackURL: h.cfg.CallbackURL,
		Channels:    []string{"card", "bank"},
		Metadata: paystack.Metadata{
			OrderID:      o.ID,
			CancelAction: h.cfg.CancelURL,
			OrderItems:   items,
			CustomFields: []paystack.CustomField{
				{DisplayName: "Customer Name", VariableName: "customer_name", Value: name},
				{DisplayName: "Phone", VariableName: "phone", Value: o.Customer.Phone},
			},
		},
	}
}

// ============================================
// Payment webhook
// ============================================

// HandlePaymentWebhook verifies and applies a gateway event. Replays of an
// already applied charge.success are acknowledged without side effects.
func (h *Handler) HandlePaymentWebhook(ctx context.Context, raw []byte, signature string) (*WebhookAck, error) {
	ctx, span := tracer.Start(ctx, "command.HandlePaymentWebhook")
	defer span.End()

	if !paystack.VerifySignature(raw, signature, h.cfg.WebhookSecret) {
		h.metrics.WebhookEvent("unknown", "invalid_signature")
		h.log(ctx).Warn("webhook signature mismatch")
		return nil, apperror.ErrInvalidSignature
	}

	event, err := paystack.ParseEvent(raw)
	if err != nil {
		h.metrics.WebhookEvent("unknown", "invalid_payload")
		return nil, apperror.Validation("invalid webhook payload", nil)
	}
	span.SetAttributes(attribute.String("webhook.event", event.Event))

	if event.Event != paystack.EventChargeSuccess {
		h.metrics.WebhookEvent(event.Event, "ignored")
		return &WebhookAck{Message: AckEventIgnored}, nil
	}

	orderID := event.Data.OrderID()
	if orderID == "" {
		h.metrics.WebhookEvent(event.Event, "missing_order_id")
		return nil, apperror.ErrMissingOrderID
	}
	span.SetAttributes(attribute.String("order.id", orderID))
	log := h.log(ctx).With(zap.String("order_id", orderID), zap.String("reference", event.Data.Reference))

	changed, err := h.orders.MarkPaid(ctx, orderID, h.now())
	if err != nil {
		h.metrics.WebhookEvent(event.Event, "error")
		span.RecordError(err)
		return nil, apperror.Internal(fmt.Errorf("mark order paid: %w", err))
	}

	if !changed {
		if _, err := h.orders.Get(ctx, orderID); err != nil {
			if apperror.IsKind(err, apperror.KindNotFound) {
				h.metrics.WebhookEvent(event.Event, "not_found")
				return nil, order.ErrOrderNotFound
			}
			h.metrics.WebhookEvent(event.Event, "error")
			return nil, apperror.Internal(fmt.Errorf("load order: %w", err))
		}
		h.metrics.WebhookEvent(event.Event, "duplicate")
		log.Info("payment already processed")
		return &WebhookAck{Message: AckPaymentAlreadyProcessed}, nil
	}

	h.metrics.WebhookEvent(event.Event, "processed")
	log.Info("order paid")

	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		log.Error("load paid order for notification failed", zap.Error(err))
		return &WebhookAck{Message: AckPaymentProcessed}, nil
	}
	if o.DeliveryStatus == order.DeliveryCancelled {
		log.Warn("payment received for a released order, stock was not re-reserved")
	}
	if err := h.notifier.OrderPaid(ctx, o); err != nil {
		log.Error("notify customer failed", zap.Error(err))
	}
	return &WebhookAck{Message: AckPaymentProcessed}, nil
}

// ============================================
// Admin and customer maintenance
// ============================================

// UpdateOrderStatus applies a partial status update. The write is guarded by
// the delivery status the update was validated against.
func (h *Handler) UpdateOrderStatus(ctx context.Context, orderID string, u order.StatusUpdate) (*order.Order, error) {
	if u.IsEmpty() {
		return nil, order.ErrEmptyStatusUpdate
	}

	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	expected := o.DeliveryStatus
	now := h.now()
	if err := o.Apply(u, now); err != nil {
		return nil, err
	}

	changed, err := h.orders.UpdateStatus(ctx, orderID, u, expected, now)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("update order status: %w", err))
	}
	if !changed {
		if _, err := h.orders.Get(ctx, orderID); err != nil {
			return nil, err
		}
		return nil, apperror.New(apperror.KindConflict, "order was modified concurrently, retry")
	}

	h.log(ctx).Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("delivery_status", string(o.DeliveryStatus)),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return h.orders.Get(ctx, orderID)
}

// DeleteOrderForUser hides the caller's own order from their history
func (h *Handler) DeleteOrderForUser(ctx context.Context, userID, orderID string) error {
	ok, err := h.orders.SoftDelete(ctx, orderID, userID, h.now())
	if err != nil {
		return apperror.Internal(fmt.Errorf("soft delete order: %w", err))
	}
	if !ok {
		return order.ErrOrderNotFound
	}
	return nil
}

// DeleteOrderForAdmin removes the order and its line items
func (h *Handler) DeleteOrderForAdmin(ctx context.Context, orderID string) error {
	ok, err := h.orders.Delete(ctx, orderID)
	if err != nil {
		return apperror.Internal(fmt.Errorf("delete order: %w", err))
	}
	if !ok {
		return order.ErrOrderNotFound
	}
	return nil
}
