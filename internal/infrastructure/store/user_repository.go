package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain/user"
)

const userColumns = `id, email, password_hash, name, role, is_active, is_verified, created_at, updated_at`

// PostgresUserRepository implements user.Repository, sessions included
type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, user.ErrEmailTaken.Message, "insert user")
	}
	return nil
}

func (r *PostgresUserRepository) get(ctx context.Context, where string, arg any) (*user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.get(ctx, "email = $1", email)
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, hash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return affected(res)
}

func (r *PostgresUserRepository) UpdateName(ctx context.Context, id, name string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, updated_at = $3 WHERE id = $1 AND is_active`, id, name, at)
	if err != nil {
		return false, fmt.Errorf("update name: %w", err)
	}
	return affected(res)
}

func (r *PostgresUserRepository) SetVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return false, fmt.Errorf("verify user: %w", err)
	}
	return affected(res)
}

func (r *PostgresUserRepository) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active`, id, at)
	if err != nil {
		return false, fmt.Errorf("deactivate user: %w", err)
	}
	return affected(res)
}

func (r *PostgresUserRepository) CreateSession(ctx context.Context, s *user.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, expires_at, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.ExpiresAt, s.IPAddress, s.UserAgent, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetSession(ctx context.Context, id string) (*user.Session, error) {
	var s user.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, refresh_token_hash, expires_at, ip_address, user_agent, created_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.ExpiresAt, &s.IPAddress, &s.UserAgent, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *PostgresUserRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) CreateToken(ctx context.Context, t *user.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_tokens (token_hash, user_id, purpose, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.Hash, t.UserID, string(t.Purpose), t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) ConsumeToken(ctx context.Context, hash string, purpose user.TokenPurpose, now time.Time) (*user.Token, error) {
	t := user.Token{Hash: hash, Purpose: purpose}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM user_tokens WHERE token_hash = $1 AND purpose = $2 AND expires_at > $3
		 RETURNING user_id, expires_at, created_at`,
		hash, string(purpose), now,
	).Scan(&t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrInvalidLinkToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	return &t, nil
}

func (r *PostgresUserRepository) DeleteTokens(ctx context.Context, userID string, purpose user.TokenPurpose) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = $1 AND purpose = $2`, userID, string(purpose)); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}
