package api

import (
	"net/http"

	"github.com/example/ec-shop/internal/api/middleware"
)

// Messages for the email-link flows. Request endpoints answer the same way
// whether or not the address has an account.
const (
	verificationSentMessage = "If the account exists, a verification link has been sent"
	resetSentMessage        = "If the account exists, a password reset link has been sent"
)

type emailRequest struct {
	Email string `json:"email"`
}

// VerifyAccount consumes the token from a verification link
func (h *AuthHandlers) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.VerifyAccount(r.Context(), r.URL.Query().Get("token")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Account verified successfully"})
}

func (h *AuthHandlers) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.userService.RequestVerification(r.Context(), req.Email); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": verificationSentMessage})
}

func (h *AuthHandlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.userService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": resetSentMessage})
}

// ResetPassword sets a new password from a reset link. Every session of the user ends.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.userService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondError(w, r, err)
		return
	}
	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

// ============================================
// Profile
// ============================================

func (h *AuthHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.userService.Profile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := h.userService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// DeleteAccount deactivates the caller and signs them out
func (h *AuthHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.DeleteAccount(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}
