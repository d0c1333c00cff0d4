package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/command"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/infrastructure/redisx"
	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/query"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = apperror.Validation("Invalid request body", nil)

// IdempotencyStore records order-create responses by client key
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (redisx.ClaimState, *redisx.StoredResponse, error)
	Complete(ctx context.Context, key string, resp redisx.StoredResponse) error
	Release(ctx context.Context, key string) error
}

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	products     *product.Service
	carts        *cart.Service
	idempotency  IdempotencyStore
}

// NewHandlers wires the shop handlers. idempotency may be nil, which
// disables Idempotency-Key handling.
func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, products *product.Service, carts *cart.Service, idempotency IdempotencyStore) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		products:     products,
		carts:        carts,
		idempotency:  idempotency,
	}
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := product.ListFilter{
		Page:       queryInt(q.Get("page")),
		Limit:      queryInt(q.Get("limit")),
		Search:     q.Get("search"),
		CategoryID: q.Get("category"),
	}
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, apperror.Validation("invalid query", map[string]string{"featured": "must be true or false"}))
			return
		}
		filter.Featured = &featured
	}

	page, err := h.queryHandler.ListProducts(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.queryHandler.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

func (h *Handlers) SetProductStock(w http.ResponseWriter, r *http.Request) {
	var req product.SizeStock
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	entry, err := h.products.SetStock(r.Context(), chi.URLParam(r, "id"), req.Size, req.Stock)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Size      string `json:"size"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	item, err := h.carts.AddItem(r.Context(), middleware.GetUserID(r.Context()), req.ProductID, req.Size, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	item, err := h.carts.UpdateItem(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "itemId"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveItem(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "itemId")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Item removed"})
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error   string            `json:"error"`
	Kind    apperror.Kind     `json:"kind"`
	Details map[string]string `json:"details,omitempty"`
}

// respondError maps err to its status and writes the client-safe body.
// Server-side failures are logged with their cause.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), nil).Error("request error", zap.String("kind", string(body.Kind)), zap.Error(err))
	}
	respondJSON(w, status, body)
}

// errorResponse is the client-safe status and body for err
func errorResponse(err error) (int, errorBody) {
	pub := apperror.Public(err)
	return pub.Status(), errorBody{Error: pub.Message, Kind: pub.Kind, Details: pub.Details}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperror.Validation("Invalid request body", map[string]string{typeErr.Field: "wrong type"})
		}
		return errInvalidBody
	}
	return nil
}

// queryInt parses a paging parameter; bad values fall back to defaults
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
