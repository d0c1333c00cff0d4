package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, db *sql.DB, name string) *user.User {
	t.Helper()
	id := uuid.New().String()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &user.User{
		ID:           id,
		Email:        id[:8] + "@example.com",
		PasswordHash: "$2a$10$placeholder",
		Name:         name,
		Role:         user.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, NewPostgresUserRepository(db).Create(context.Background(), u))
	return u
}

// ============================================
// Account
// ============================================

func TestUserRepository_ProfileLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresUserRepository(db)
	u := seedUser(t, db, "Ada")
	now := time.Now().UTC()

	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsVerified)

	ok, err := repo.SetVerified(ctx, u.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.UpdateName(ctx, u.ID, "Ada Obi", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Equal(t, "Ada Obi", got.Name)

	ok, err = repo.Deactivate(ctx, u.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Deactivate(ctx, u.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "deactivation happens once")
	ok, err = repo.UpdateName(ctx, u.ID, "Ghost", now)
	require.NoError(t, err)
	assert.False(t, ok, "deactivated accounts cannot be renamed")
}

func TestUserRepository_DeleteUserSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresUserRepository(db)
	u := seedUser(t, db, "Ada")
	other := seedUser(t, db, "Bola")

	var ids []string
	for _, owner := range []string{u.ID, u.ID, other.ID} {
		s := &user.Session{
			ID:               uuid.New().String(),
			UserID:           owner,
			RefreshTokenHash: uuid.New().String(),
			ExpiresAt:        time.Now().Add(time.Hour).UTC(),
			CreatedAt:        time.Now().UTC(),
		}
		require.NoError(t, repo.CreateSession(ctx, s))
		ids = append(ids, s.ID)
	}

	require.NoError(t, repo.DeleteUserSessions(ctx, u.ID))

	for _, id := range ids[:2] {
		_, err := repo.GetSession(ctx, id)
		assert.ErrorIs(t, err, user.ErrSessionNotFound)
	}
	_, err := repo.GetSession(ctx, ids[2])
	assert.NoError(t, err)
}

func TestUserRepository_ConsumeToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresUserRepository(db)
	u := seedUser(t, db, "Ada")
	now := time.Now().UTC().Truncate(time.Microsecond)

	token := &user.Token{
		Hash:      uuid.New().String(),
		UserID:    u.ID,
		Purpose:   user.PurposeResetPassword,
		ExpiresAt: now.Add(user.ResetTokenTTL),
		CreatedAt: now,
	}
	require.NoError(t, repo.CreateToken(ctx, token))

	_, err := repo.ConsumeToken(ctx, token.Hash, user.PurposeVerifyEmail, now)
	assert.ErrorIs(t, err, user.ErrInvalidLinkToken, "purpose must match")
	_, err = repo.ConsumeToken(ctx, token.Hash, user.PurposeResetPassword, token.ExpiresAt)
	assert.ErrorIs(t, err, user.ErrInvalidLinkToken, "expired at the deadline")

	got, err := repo.ConsumeToken(ctx, token.Hash, user.PurposeResetPassword, now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.True(t, token.ExpiresAt.Equal(got.ExpiresAt))

	_, err = repo.ConsumeToken(ctx, token.Hash, user.PurposeResetPassword, now)
	assert.ErrorIs(t, err, user.ErrInvalidLinkToken, "single use")
}

func TestUserRepository_DeleteTokensByPurpose(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresUserRepository(db)
	u := seedUser(t, db, "Ada")
	now := time.Now().UTC()

	mk := func(purpose user.TokenPurpose) string {
		hash := uuid.New().String()
		require.NoError(t, repo.CreateToken(ctx, &user.Token{Hash: hash, UserID: u.ID, Purpose: purpose, ExpiresAt: now.Add(time.Hour), CreatedAt: now}))
		return hash
	}
	reset := mk(user.PurposeResetPassword)
	verify := mk(user.PurposeVerifyEmail)

	require.NoError(t, repo.DeleteTokens(ctx, u.ID, user.PurposeResetPassword))

	_, err := repo.ConsumeToken(ctx, reset, user.PurposeResetPassword, now)
	assert.ErrorIs(t, err, user.ErrInvalidLinkToken)
	_, err = repo.ConsumeToken(ctx, verify, user.PurposeVerifyEmail, now)
	assert.NoError(t, err)
}

// ============================================
// Reviews
// ============================================

func newReview(productID, userID string, rating int, at time.Time) *review.Review {
	return &review.Review{
		ID:        uuid.New().String(),
		ProductID: productID,
		UserID:    userID,
		Rating:    rating,
		Comment:   "fits well",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestReviewRepository_CreateGetUpdateDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresReviewRepository(db)
	p := seedProduct(t, db, 5)
	u := seedUser(t, db, "Ada")
	now := time.Now().UTC().Truncate(time.Microsecond)

	rv := newReview(p.ID, u.ID, 4, now)
	require.NoError(t, repo.Create(ctx, rv))

	got, err := repo.Get(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.UserName, "author name comes from users")
	assert.Equal(t, 4, got.Rating)

	byPair, err := repo.GetByUserAndProduct(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, rv.ID, byPair.ID)

	rv.Rating = 2
	rv.Comment = "shrank"
	rv.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, rv))
	got, err = repo.Get(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Rating)
	assert.Equal(t, "shrank", got.Comment)

	deleted, err := repo.Delete(ctx, rv.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = repo.Get(ctx, rv.ID)
	assert.ErrorIs(t, err, review.ErrReviewNotFound)
	assert.ErrorIs(t, repo.Update(ctx, rv), review.ErrReviewNotFound)
}

func TestReviewRepository_OnePerUserAndProduct(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresReviewRepository(db)
	p := seedProduct(t, db, 5)
	u := seedUser(t, db, "Ada")
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newReview(p.ID, u.ID, 5, now)))
	err := repo.Create(ctx, newReview(p.ID, u.ID, 1, now))

	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.Equal(t, review.ErrAlreadyReviewed.Message, apperror.From(err).Message)
}

func TestReviewRepository_ListByProductNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPostgresReviewRepository(db)
	p := seedProduct(t, db, 5)
	other := seedProduct(t, db, 5)
	base := time.Now().UTC().Truncate(time.Microsecond)

	var want []string
	for i, name := range []string{"Ada", "Bola", "Chidi"} {
		rv := newReview(p.ID, seedUser(t, db, name).ID, 3+i%3, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, rv))
		want = append([]string{rv.ID}, want...)
	}
	require.NoError(t, repo.Create(ctx, newReview(other.ID, seedUser(t, db, "Dayo").ID, 1, base)))

	got, err := repo.ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, rv := range got {
		assert.Equal(t, want[i], rv.ID)
	}
	assert.Equal(t, "Chidi", got[0].UserName)

	empty, err := repo.ListByProduct(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
