package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/command"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/infrastructure/redisx"
	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/payment/paystack"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader lets clients retry order creation safely
const IdempotencyKeyHeader = "Idempotency-Key"

var errRequestInProgress = apperror.New(apperror.KindConflict, "a request with this Idempotency-Key is already in progress")

// Order Handlers

// PlaceOrder creates an order for a guest or the signed-in user and returns
// the payment authorization URL.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.PlaceOrder
	if err := decodeJSON(w, r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	ctx := r.Context()
	claims, _ := middleware.GetUserFromContext(ctx)
	log := logging.FromContext(ctx, nil)

	key := h.idempotencyKey(r, claims)
	if key != "" {
		state, stored, err := h.idempotency.Claim(ctx, key)
		switch {
		case err != nil:
			// Redis trouble degrades to plain order creation
			log.Warn("idempotency claim failed", zap.Error(err))
			key = ""
		case state == redisx.ClaimInProgress:
			respondError(w, r, errRequestInProgress)
			return
		case state == redisx.ClaimCompleted:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}
	}

	result, err := h.cmdHandler.PlaceOrder(ctx, claims, cmd)
	if err != nil {
		if key != "" {
			h.settleFailedClaim(r, key, err)
		}
		respondError(w, r, err)
		return
	}

	if key != "" {
		h.completeClaim(r, key, http.StatusCreated, result)
	}
	respondJSON(w, http.StatusCreated, result)
}

// settleFailedClaim frees the key when nothing was persisted. A gateway
// failure comes after the order is stored, so its 502 is kept for replay.
func (h *Handlers) settleFailedClaim(r *http.Request, key string, err error) {
	if apperror.IsKind(err, apperror.KindGatewayInitFailed) {
		status, body := errorResponse(err)
		h.completeClaim(r, key, status, body)
		return
	}
	if relErr := h.idempotency.Release(r.Context(), key); relErr != nil {
		logging.FromContext(r.Context(), nil).Warn("idempotency release failed", zap.Error(relErr))
	}
}

func (h *Handlers) completeClaim(r *http.Request, key string, status int, v any) {
	body, err := json.Marshal(v)
	if err == nil {
		err = h.idempotency.Complete(r.Context(), key, redisx.StoredResponse{Status: status, Body: body})
	}
	if err != nil {
		logging.FromContext(r.Context(), nil).Warn("idempotency complete failed", zap.Int("status", status), zap.Error(err))
	}
}

// idempotencyKey scopes the client key to the caller so keys never collide across users
func (h *Handlers) idempotencyKey(r *http.Request, claims *auth.Claims) string {
	if h.idempotency == nil {
		return ""
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		return ""
	}
	owner := "guest"
	if claims != nil {
		owner = claims.UserID
	}
	return owner + ":" + key
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	claims, _ := middleware.GetUserFromContext(r.Context())

	page, err := h.queryHandler.ListOrders(r.Context(), claims, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// GuestReferenceParam carries the payment reference a guest must present
// to read their order after the payment redirect
const GuestReferenceParam = "reference"

// GetOrder serves signed-in users, and guests that present the payment reference
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var (
		o   *order.Order
		err error
	)
	if claims == nil {
		o, err = h.queryHandler.GetGuestOrder(r.Context(), id, r.URL.Query().Get(GuestReferenceParam))
	} else {
		o, err = h.queryHandler.GetOrder(r.Context(), claims, id)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// DeleteOrder hides the order from the customer's history
func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.DeleteOrderForUser(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

// Admin Handlers

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentStatus  *string `json:"payment_status"`
		DeliveryStatus *string `json:"delivery_status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var u order.StatusUpdate
	if req.PaymentStatus != nil {
		s, err := order.ParsePaymentStatus(*req.PaymentStatus)
		if err != nil {
			respondError(w, r, err)
			return
		}
		u.PaymentStatus = &s
	}
	if req.DeliveryStatus != nil {
		s, err := order.ParseDeliveryStatus(*req.DeliveryStatus)
		if err != nil {
			respondError(w, r, err)
			return
		}
		u.DeliveryStatus = &s
	}

	o, err := h.cmdHandler.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.DeleteOrderForAdmin(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

// Webhook Handlers

// PaystackWebhook verifies the raw body against the signature header before
// anything is parsed.
func (h *Handlers) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, apperror.Validation("invalid webhook payload", nil))
		return
	}

	ack, err := h.cmdHandler.HandlePaymentWebhook(r.Context(), raw, r.Header.Get(paystack.SignatureHeader))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ack)
}

// orderFilter reads paging, search and status filters from the query string
func orderFilter(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	filter := order.ListFilter{
		Page:   queryInt(q.Get("page")),
		Limit:  queryInt(q.Get("limit")),
		Search: q.Get("search"),
		UserID: q.Get("user_id"),
	}
	if v := q.Get("payment_status"); v != "" {
		s, err := order.ParsePaymentStatus(v)
		if err != nil {
			return filter, err
		}
		filter.PaymentStatus = s
	}
	if v := q.Get("delivery_status"); v != "" {
		s, err := order.ParseDeliveryStatus(v)
		if err != nil {
			return filter, err
		}
		filter.DeliveryStatus = s
	}
	return filter, nil
}
