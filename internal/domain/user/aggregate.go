package user

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

const (
	VerificationTokenTTL = 15 * time.Minute
	ResetTokenTTL        = 15 * time.Minute
	maxNameLength        = 100
)

var (
	ErrUserNotFound       = apperror.New(apperror.KindNotFound, "User not found")
	ErrInvalidEmail       = apperror.Validation("a valid email is required", map[string]string{"email": "invalid"})
	ErrInvalidName        = apperror.Validation("name is required", map[string]string{"name": "required"})
	ErrInvalidRole        = apperror.Validation("unknown role", map[string]string{"role": "customer or admin"})
	ErrEmailTaken         = apperror.New(apperror.KindConflict, "User with this email already exists")
	ErrInvalidCredentials = apperror.New(apperror.KindUnauthorized, "Invalid email or password")
	ErrUserDeactivated    = apperror.New(apperror.KindForbidden, "Account is deactivated")
	ErrSessionNotFound    = apperror.New(apperror.KindUnauthorized, "Session not found")
	ErrEmailNotVerified   = apperror.New(apperror.KindForbidden, "Please verify your email before logging in")
	ErrAlreadyVerified    = apperror.New(apperror.KindConflict, "Account verified already")
	ErrInvalidLinkToken   = apperror.Validation("token is invalid or has expired", map[string]string{"token": "invalid or expired"})
	ErrNameTooLong        = apperror.Validation("name is too long", map[string]string{"name": "max 100 characters"})
)

// TokenPurpose scopes a link token to one flow
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposeResetPassword TokenPurpose = "reset_password"
)

// Token is a single-use email link token, stored only as its hash
type Token struct {
	Hash      string
	UserID    string
	Purpose   TokenPurpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Mailer delivers account emails. Links carry the raw token.
type Mailer interface {
	SendVerification(to, name, link string) error
	SendPasswordReset(to, name, link string) error
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return len(email) <= 254 && emailRegex.MatchString(email)
}

// User represents a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session binds a refresh token hash to a user until it expires
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
}

type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, hash string, at time.Time) (bool, error)
	UpdateName(ctx context.Context, id, name string, at time.Time) (bool, error)
	SetVerified(ctx context.Context, id string, at time.Time) (bool, error)
	// Deactivate soft-deletes the account. It reports whether an active row changed.
	Deactivate(ctx context.Context, id string, at time.Time) (bool, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error

	CreateToken(ctx context.Context, t *Token) error
	// ConsumeToken deletes and returns an unexpired token, or ErrInvalidLinkToken
	ConsumeToken(ctx context.Context, hash string, purpose TokenPurpose, now time.Time) (*Token, error)
	DeleteTokens(ctx context.Context, userID string, purpose TokenPurpose) error
}

// Service handles user domain operations
type Service struct {
	repo        Repository
	mailer      Mailer
	frontendURL string
	now         func() time.Time
}

// NewService creates a new user service. Account links point at frontendURL.
// A nil mailer skips sending.
func NewService(repo Repository, mailer Mailer, frontendURL string) *Service {
	return &Service{
		repo:        repo,
		mailer:      mailer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

// Register creates a new customer
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	return s.RegisterWithRole(ctx, email, password, name, RoleCustomer)
}

// RegisterWithRole creates a new user with a specific role
func (s *Service) RegisterWithRole(ctx context.Context, email, password, name, role string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	if role != RoleCustomer && role != RoleAdmin {
		return nil, ErrInvalidRole
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if apperror.IsKind(err, apperror.KindConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	// the account exists either way; a lost email is recovered with RequestVerification
	if err := s.sendVerification(ctx, u); err != nil {
		logging.FromContext(ctx, nil).Warn("verification email not sent", zap.String("user_id", u.ID), zap.Error(err))
	}
	return u, nil
}

// Authenticate checks credentials. Unknown email and wrong password are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrUserDeactivated
	}
	if !u.IsVerified {
		return nil, ErrEmailNotVerified
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// ChangePassword verifies the current password before storing the new hash
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, u.PasswordHash) {
		return apperror.Validation("current password is incorrect", map[string]string{"current_password": "incorrect"})
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdatePassword(ctx, userID, hash, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// StartSession records a refresh token hash for later rotation
func (s *Service) StartSession(ctx context.Context, userID, refreshTokenHash string, expiresAt time.Time, ip, userAgent string) (*Session, error) {
	sess := &Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		RefreshTokenHash: refreshTokenHash,
		ExpiresAt:        expiresAt,
		IPAddress:        ip,
		UserAgent:        userAgent,
		CreatedAt:        s.now(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ValidateSession returns the session when it belongs to userID, is unexpired
// and matches refreshTokenHash. Expired sessions are removed.
func (s *Service) ValidateSession(ctx context.Context, sessionID, userID, refreshTokenHash string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.now().After(sess.ExpiresAt) {
		_ = s.repo.DeleteSession(ctx, sessionID)
		return nil, apperror.New(apperror.KindUnauthorized, "Session expired")
	}
	if sess.UserID != userID || sess.RefreshTokenHash != refreshTokenHash {
		return nil, apperror.New(apperror.KindUnauthorized, "Invalid refresh token")
	}
	return sess, nil
}

func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSession(ctx, sessionID)
}

// ============================================
// Email verification and password reset
// ============================================

// RequestVerification mails a fresh verification link. Unknown and
// deactivated addresses succeed silently.
func (s *Service) RequestVerification(ctx context.Context, email string) error {
	u, err := s.activeByEmail(ctx, email)
	if err != nil || u == nil {
		return err
	}
	if u.IsVerified {
		return ErrAlreadyVerified
	}
	return s.sendVerification(ctx, u)
}

// VerifyAccount marks the token's owner verified. The token is spent either way.
func (s *Service) VerifyAccount(ctx context.Context, token string) error {
	t, err := s.consume(ctx, token, PurposeVerifyEmail)
	if err != nil {
		return err
	}
	ok, err := s.repo.SetVerified(ctx, t.UserID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// RequestPasswordReset replaces any outstanding reset link with a new one.
// Unknown and deactivated addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.activeByEmail(ctx, email)
	if err != nil || u == nil {
		return err
	}
	if err := s.repo.DeleteTokens(ctx, u.ID, PurposeResetPassword); err != nil {
		return err
	}
	raw, err := s.issueToken(ctx, u.ID, PurposeResetPassword, ResetTokenTTL)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendPasswordReset(u.Email, u.Name, s.link("/reset-password", raw)); err != nil {
		return fmt.Errorf("send password reset email: %w", err)
	}
	return nil
}

// ResetPassword sets a new password from a reset link and signs the user out everywhere
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	t, err := s.consume(ctx, token, PurposeResetPassword)
	if err != nil {
		return err
	}

	ok, err := s.repo.UpdatePassword(ctx, t.UserID, hash, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if err := s.repo.DeleteTokens(ctx, t.UserID, PurposeResetPassword); err != nil {
		return err
	}
	return s.repo.DeleteUserSessions(ctx, t.UserID)
}

func (s *Service) activeByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, nil
	}
	return u, nil
}

func (s *Service) sendVerification(ctx context.Context, u *User) error {
	raw, err := s.issueToken(ctx, u.ID, PurposeVerifyEmail, VerificationTokenTTL)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendVerification(u.Email, u.Name, s.link("/verify-account", raw)); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *Service) issueToken(ctx context.Context, userID string, purpose TokenPurpose, ttl time.Duration) (string, error) {
	raw, err := auth.NewOpaqueToken()
	if err != nil {
		return "", apperror.Internal(err)
	}
	now := s.now()
	t := &Token{
		Hash:      auth.HashToken(raw),
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.repo.CreateToken(ctx, t); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Service) consume(ctx context.Context, raw string, purpose TokenPurpose) (*Token, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrInvalidLinkToken
	}
	return s.repo.ConsumeToken(ctx, auth.HashToken(raw), purpose, s.now())
}

func (s *Service) link(path, token string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(token)
}

// ============================================
// Profile
// ============================================

// Profile returns the caller's account. Deactivated accounts read as missing.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// UpdateProfile renames the caller
func (s *Service) UpdateProfile(ctx context.Context, userID, name string) (*User, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, ErrInvalidName
	case len([]rune(name)) > maxNameLength:
		return nil, ErrNameTooLong
	}
	if _, err := s.Profile(ctx, userID); err != nil {
		return nil, err
	}

	ok, err := s.repo.UpdateName(ctx, userID, name, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.repo.Get(ctx, userID)
}

// DeleteAccount deactivates the caller and ends every session. Orders keep their user_id.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	ok, err := s.repo.Deactivate(ctx, userID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return s.repo.DeleteUserSessions(ctx, userID)
}
