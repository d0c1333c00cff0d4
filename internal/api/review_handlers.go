package api

import (
	"net/http"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/go-chi/chi/v5"
)

// ReviewHandlers handles product review HTTP requests
type ReviewHandlers struct {
	reviewService *review.Service
}

func NewReviewHandlers(reviewService *review.Service) *ReviewHandlers {
	return &ReviewHandlers{reviewService: reviewService}
}

// ListProductReviews returns a product's reviews with their average rating
func (h *ReviewHandlers) ListProductReviews(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reviewService.ListByProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *ReviewHandlers) GetReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.reviewService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rv)
}

func (h *ReviewHandlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	var in review.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	claims, _ := middleware.GetUserFromContext(r.Context())
	rv, err := h.reviewService.Create(r.Context(), claims, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rv)
}

// UpdateReview changes the rating and comment (author or admin)
func (h *ReviewHandlers) UpdateReview(w http.ResponseWriter, r *http.Request) {
	var in review.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	claims, _ := middleware.GetUserFromContext(r.Context())
	rv, err := h.reviewService.Update(r.Context(), claims, chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rv)
}

// DeleteReview removes a review (author or admin)
func (h *ReviewHandlers) DeleteReview(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	if err := h.reviewService.Delete(r.Context(), claims, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Review deleted"})
}
