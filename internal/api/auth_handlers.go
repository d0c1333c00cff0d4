package api

import (
	"net/http"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/logging"
	"go.uber.org/zap"
)

const (
	refreshTokenCookie = "refresh_token"
	sessionCookie      = "session_id"
	refreshCookiePath  = "/api/auth/refresh"

	registeredMessage = "Registration successful. Check your email to verify your account"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	userService *user.Service
	jwtService  *auth.JWTService
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(userService *user.Service, jwtService *auth.JWTService) *AuthHandlers {
	return &AuthHandlers{
		userService: userService,
		jwtService:  jwtService,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User    *user.User `json:"user"`
	Message string     `json:"message,omitempty"`
}

// Register creates an unverified account and mails its verification link
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	newUser, err := h.userService.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// No session until the address is verified
	respondJSON(w, http.StatusCreated, AuthResponse{User: newUser, Message: registeredMessage})
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.startSession(w, r, u); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, AuthResponse{User: u, Message: "Login successful"})
}

// Logout ends the session and clears cookies. It succeeds without a session.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := h.userService.EndSession(r.Context(), cookie.Value); err != nil {
			logging.FromContext(r.Context(), nil).Warn("end session failed", zap.Error(err))
		}
	}

	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Refresh rotates the session: the old one is deleted and new tokens issued
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		respondError(w, r, apperror.New(apperror.KindUnauthorized, "No refresh token"))
		return
	}
	session, err := r.Cookie(sessionCookie)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, apperror.New(apperror.KindUnauthorized, "No session"))
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(refresh.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, apperror.New(apperror.KindUnauthorized, "Invalid refresh token"))
		return
	}

	ctx := r.Context()
	if _, err := h.userService.ValidateSession(ctx, session.Value, userID, auth.HashToken(refresh.Value)); err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, err)
		return
	}

	u, err := h.userService.Get(ctx, userID)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, apperror.New(apperror.KindUnauthorized, "User not found"))
		return
	}
	if !u.IsActive {
		h.clearAuthCookies(w)
		respondError(w, r, user.ErrUserDeactivated)
		return
	}

	_ = h.userService.EndSession(ctx, session.Value)
	if err := h.startSession(w, r, u); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.userService.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// ChangePassword handles password change requests
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	err := h.userService.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// Helper methods

// startSession issues both tokens, stores the hashed refresh token and sets cookies
func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, u *user.User) error {
	accessToken, accessExpiry, err := h.jwtService.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return apperror.Internal(err)
	}
	refreshToken, refreshExpiry, err := h.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		return apperror.Internal(err)
	}

	sess, err := h.userService.StartSession(r.Context(), u.ID, auth.HashToken(refreshToken), refreshExpiry, r.RemoteAddr, r.UserAgent())
	if err != nil {
		return err
	}

	secure := r.TLS != nil
	setCookie(w, middleware.AccessTokenCookie, accessToken, "/", accessExpiry, secure)
	setCookie(w, refreshTokenCookie, refreshToken, refreshCookiePath, refreshExpiry, secure)
	setCookie(w, sessionCookie, sess.ID, "/", refreshExpiry, secure)
	return nil
}

func setCookie(w http.ResponseWriter, name, value, path string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{middleware.AccessTokenCookie, "/"},
		{refreshTokenCookie, refreshCookiePath},
		{sessionCookie, "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}
