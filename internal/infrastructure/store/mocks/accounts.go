package mocks

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/example/ec-shop/internal/domain/user"
)

var (
	_ user.Repository   = (*UserStore)(nil)
	_ review.Repository = (*ReviewStore)(nil)
	_ user.Mailer       = (*FakeMailer)(nil)
)

// UserStore is an in-memory user.Repository with the same guards as the SQL one
type UserStore struct {
	mu       sync.Mutex
	users    map[string]*user.User
	sessions map[string]*user.Session
	tokens   map[string]*user.Token
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:    map[string]*user.User{},
		sessions: map[string]*user.Session{},
		tokens:   map[string]*user.Token{},
	}
}

func (s *UserStore) Create(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperror.New(apperror.KindConflict, user.ErrEmailTaken.Message)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *UserStore) Get(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

// update applies fn to an active user when requireActive is set, to any user otherwise
func (s *UserStore) update(id string, requireActive bool, fn func(*user.User)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || (requireActive && !u.IsActive) {
		return false
	}
	fn(u)
	return true
}

func (s *UserStore) UpdatePassword(_ context.Context, id, hash string, at time.Time) (bool, error) {
	return s.update(id, false, func(u *user.User) { u.PasswordHash, u.UpdatedAt = hash, at }), nil
}

func (s *UserStore) UpdateName(_ context.Context, id, name string, at time.Time) (bool, error) {
	return s.update(id, true, func(u *user.User) { u.Name, u.UpdatedAt = name, at }), nil
}

func (s *UserStore) SetVerified(_ context.Context, id string, at time.Time) (bool, error) {
	return s.update(id, false, func(u *user.User) { u.IsVerified, u.UpdatedAt = true, at }), nil
}

func (s *UserStore) Deactivate(_ context.Context, id string, at time.Time) (bool, error) {
	return s.update(id, true, func(u *user.User) { u.IsActive, u.UpdatedAt = false, at }), nil
}

func (s *UserStore) CreateSession(_ context.Context, sess *user.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *UserStore) GetSession(_ context.Context, id string) (*user.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, user.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *UserStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *UserStore) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *UserStore) CreateToken(_ context.Context, t *user.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens[t.Hash] = &cp
	return nil
}

func (s *UserStore) ConsumeToken(_ context.Context, hash string, purpose user.TokenPurpose, now time.Time) (*user.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.Purpose != purpose || !t.ExpiresAt.After(now) {
		return nil, user.ErrInvalidLinkToken
	}
	delete(s.tokens, hash)
	return t, nil
}

func (s *UserStore) DeleteTokens(_ context.Context, userID string, purpose user.TokenPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.tokens {
		if t.UserID == userID && t.Purpose == purpose {
			delete(s.tokens, hash)
		}
	}
	return nil
}

// SessionCount returns the stored sessions of userID
func (s *UserStore) SessionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

// Name resolves a user's display name, empty when unknown
func (s *UserStore) Name(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u.Name
	}
	return ""
}

// ReviewStore is an in-memory review.Repository. Names resolves author
// names the way the SQL join does and may be nil.
type ReviewStore struct {
	mu      sync.Mutex
	reviews map[string]*review.Review
	Names   func(userID string) string
}

func NewReviewStore() *ReviewStore {
	return &ReviewStore{reviews: map[string]*review.Review{}}
}

func (s *ReviewStore) withName(r review.Review) review.Review {
	if s.Names != nil {
		r.UserName = s.Names(r.UserID)
	}
	return r
}

func (s *ReviewStore) Create(_ context.Context, r *review.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if existing.UserID == r.UserID && existing.ProductID == r.ProductID {
			return apperror.New(apperror.KindConflict, review.ErrAlreadyReviewed.Message)
		}
	}
	cp := *r
	s.reviews[r.ID] = &cp
	return nil
}

func (s *ReviewStore) Update(_ context.Context, r *review.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reviews[r.ID]
	if !ok {
		return review.ErrReviewNotFound
	}
	existing.Rating, existing.Comment, existing.UpdatedAt = r.Rating, r.Comment, r.UpdatedAt
	return nil
}

func (s *ReviewStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reviews[id]
	delete(s.reviews, id)
	return ok, nil
}

func (s *ReviewStore) Get(_ context.Context, id string) (*review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, review.ErrReviewNotFound
	}
	cp := s.withName(*r)
	return &cp, nil
}

func (s *ReviewStore) GetByUserAndProduct(_ context.Context, userID, productID string) (*review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.UserID == userID && r.ProductID == productID {
			cp := s.withName(*r)
			return &cp, nil
		}
	}
	return nil, review.ErrReviewNotFound
}

func (s *ReviewStore) ListByProduct(_ context.Context, productID string) ([]review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []review.Review
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, s.withName(*r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MailCall records one account email
type MailCall struct {
	Kind string
	To   string
	Name string
	Link string
}

// FakeMailer records account emails instead of sending them
type FakeMailer struct {
	mu    sync.Mutex
	Err   error
	Calls []MailCall
}

func (m *FakeMailer) SendVerification(to, name, link string) error {
	return m.record("verify", to, name, link)
}

func (m *FakeMailer) SendPasswordReset(to, name, link string) error {
	return m.record("reset", to, name, link)
}

func (m *FakeMailer) record(kind, to, name, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MailCall{Kind: kind, To: to, Name: name, Link: link})
	return m.Err
}

// LastToken returns the token query parameter of the newest email of kind, empty when none was sent
func (m *FakeMailer) LastToken(kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Kind != kind {
			continue
		}
		u, err := url.Parse(m.Calls[i].Link)
		if err != nil {
			return ""
		}
		return u.Query().Get("token")
	}
	return ""
}

func (m *FakeMailer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
