package api

import (
	"net/http"

	"github.com/example/ec-shop/internal/domain/category"
	"github.com/go-chi/chi/v5"
)

// CategoryHandlers handles category-related HTTP requests
type CategoryHandlers struct {
	categoryService *category.Service
}

// NewCategoryHandlers creates a new CategoryHandlers instance
func NewCategoryHandlers(categoryService *category.Service) *CategoryHandlers {
	return &CategoryHandlers{categoryService: categoryService}
}

// ListCategories returns all categories as a tree of roots
func (h *CategoryHandlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	tree, err := h.categoryService.Tree(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tree == nil {
		tree = []*category.Category{}
	}
	respondJSON(w, http.StatusOK, tree)
}

func (h *CategoryHandlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.categoryService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CreateCategory creates a new category (admin only)
func (h *CategoryHandlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in category.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.categoryService.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// UpdateCategory updates an existing category (admin only)
func (h *CategoryHandlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in category.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.categoryService.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// DeleteCategory deletes a category (admin only)
func (h *CategoryHandlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categoryService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Category deleted"})
}
