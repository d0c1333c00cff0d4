package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain/order"
	"go.uber.org/zap"
)

const releaseBatchSize = 100

// ReleasePolicy is how long an undelivered order holds its stock, keyed by
// payment status. Unpaid orders never got an authorization URL. Pending orders
// have one and can still be paid. A zero TTL never releases that status.
type ReleasePolicy struct {
	UnpaidTTL  time.Duration
	PendingTTL time.Duration
}

// Enabled reports whether any status is ever released
func (p ReleasePolicy) Enabled() bool {
	return p.UnpaidTTL > 0 || p.PendingTTL > 0
}

type releaseRule struct {
	status order.PaymentStatus
	ttl    time.Duration
}

func (p ReleasePolicy) rules() []releaseRule {
	var rules []releaseRule
	if p.UnpaidTTL > 0 {
		rules = append(rules, releaseRule{order.PaymentUnpaid, p.UnpaidTTL})
	}
	if p.PendingTTL > 0 {
		rules = append(rules, releaseRule{order.PaymentPending, p.PendingTTL})
	}
	return rules
}

// ReleaseExpiredOrders cancels undelivered orders that outlived their TTL
// under policy and puts their stock back. Each order is released in its own
// transaction.
func (h *Handler) ReleaseExpiredOrders(ctx context.Context, policy ReleasePolicy) (int, error) {
	var (
		released int
		errs     []error
	)
	for _, rule := range policy.rules() {
		cutoff := h.now().Add(-rule.ttl)
		expired, err := h.orders.ListExpired(ctx, rule.status, cutoff, releaseBatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list expired %s orders: %w", rule.status, err))
			continue
		}

		for i := range expired {
			ok, err := h.release(ctx, &expired[i], rule.status)
			if err != nil {
				h.log(ctx).Error("release order failed", zap.String("order_id", expired[i].ID), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			if ok {
				released++
			}
		}
	}
	h.metrics.OrdersReleased(released)
	return released, errors.Join(errs...)
}

func (h *Handler) release(ctx context.Context, o *order.Order, expected order.PaymentStatus) (bool, error) {
	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := h.now()
	cancelled, err := tx.CancelUnpaid(ctx, o.ID, expected, now)
	if err != nil {
		return false, err
	}
	if !cancelled {
		// paid or moved on since it was listed
		return false, nil
	}

	for _, item := range o.Items {
		if err := tx.Release(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	h.log(ctx).Info("expired order released",
		zap.String("order_id", o.ID),
		zap.String("payment_status", string(expected)),
		zap.Int("items", len(o.Items)),
	)
	h.publish(ctx, order.EventOrderReleased, o.ID, order.OrderReleased{OrderID: o.ID, ReleasedAt: now})
	return true, nil
}

// RunReleaser calls ReleaseExpiredOrders every interval until ctx is done.
// It returns at once when policy releases nothing.
func (h *Handler) RunReleaser(ctx context.Context, policy ReleasePolicy, interval time.Duration) {
	if !policy.Enabled() || interval <= 0 {
		h.logger.Info("order release disabled")
		return
	}
	h.logger.Info("order release enabled",
		zap.Duration("unpaid_ttl", policy.UnpaidTTL),
		zap.Duration("pending_ttl", policy.PendingTTL),
		zap.Duration("interval", interval),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.ReleaseExpiredOrders(ctx, policy)
			if err != nil {
				h.logger.Error("release expired orders", zap.Error(err))
			}
			if n > 0 {
				h.logger.Info("released expired orders", zap.Int("count", n))
			}
		}
	}
}
