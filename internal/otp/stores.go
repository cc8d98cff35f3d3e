package otp

import (
	"context"
	"encoding/gob"
	"errors"
	"sync"

	"github.com/agjmills/drive/internal/database/models"
	"github.com/alexedwards/scs/v2"
)

func init() {
	gob.Register(Challenge{})
}

// SessionStore keeps the challenge in the caller's session, so the subject
// is implied by the request context and ignored. ctx must carry session
// data loaded by scs LoadAndSave.
type SessionStore struct {
	sessions *scs.SessionManager
	key      string
}

func NewSessionStore(sessions *scs.SessionManager, key string) *SessionStore {
	return &SessionStore{sessions: sessions, key: key}
}

func (s *SessionStore) Load(ctx context.Context, _ string) (*Challenge, error) {
	c, ok := s.sessions.Get(ctx, s.key).(Challenge)
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *SessionStore) Save(ctx context.Context, _ string, c Challenge) error {
	s.sessions.Put(ctx, s.key, c)
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, _ string) error {
	s.sessions.Remove(ctx, s.key)
	return nil
}

// ErrNoAccount is returned when saving a challenge for an email that has
// no account.
var ErrNoAccount = errors.New("no account for subject")

// AccountStore is the subset of the credential store UserStore needs.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
}

// UserStore keeps the challenge on the user row; the subject is the email.
// The code, expiry and attempt columns are always written together.
type UserStore struct {
	accounts AccountStore
}

func NewUserStore(accounts AccountStore) *UserStore {
	return &UserStore{accounts: accounts}
}

func (s *UserStore) Load(ctx context.Context, email string) (*Challenge, error) {
	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil || user == nil {
		return nil, err
	}
	if user.OTPCode == nil || user.OTPExpires == nil || user.OTPAttempts == nil {
		return nil, nil
	}
	return &Challenge{
		Email:     user.Email,
		Code:      *user.OTPCode,
		ExpiresAt: *user.OTPExpires,
		Attempts:  *user.OTPAttempts,
	}, nil
}

func (s *UserStore) Save(ctx context.Context, email string, c Challenge) error {
	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNoAccount
	}
	return s.accounts.UpdateFields(ctx, user.ID, map[string]any{
		"otp_code":     c.Code,
		"otp_expires":  c.ExpiresAt,
		"otp_attempts": c.Attempts,
	})
}

func (s *UserStore) Clear(ctx context.Context, email string) error {
	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil || user == nil {
		return err
	}
	return s.accounts.UpdateFields(ctx, user.ID, ClearedFields())
}

// ClearedFields nulls the challenge columns. Callers merge it into the
// update that completes a flow.
func ClearedFields() map[string]any {
	return map[string]any{
		"otp_code":     nil,
		"otp_expires":  nil,
		"otp_attempts": nil,
	}
}

// MemoryStore is a map-backed Store.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]Challenge)}
}

func (s *MemoryStore) Load(_ context.Context, subject string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[subject]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, subject string, c Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[subject] = c
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, subject)
	return nil
}

// Len returns the number of stored challenges.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

