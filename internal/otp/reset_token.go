package otp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/agjmills/drive/internal/database/models"
)

// resetTokenBytes is the entropy of an emailed reset token (256 bits).
const resetTokenBytes = 32

// TokenStore is the subset of the credential store ResetTokens needs.
type TokenStore interface {
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, fields map[string]any) (bool, error)
}

// ResetTokens issues and redeems single-use password reset tokens. Only the
// SHA-256 digest of a token is persisted.
type ResetTokens struct {
	store TokenStore
	ttl   time.Duration
	options
}

func NewResetTokens(store TokenStore, ttl time.Duration, opts ...Option) *ResetTokens {
	return &ResetTokens{store: store, ttl: ttl, options: buildOptions(opts)}
}

// Issue stores a new token for user, replacing any earlier one, and
// returns the plaintext token for emailing.
func (r *ResetTokens) Issue(ctx context.Context, user *models.User) (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(r.random, buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)

	err := r.store.UpdateFields(ctx, user.ID, map[string]any{
		"reset_token_hash":    HashToken(token),
		"reset_token_expires": r.now().Add(r.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("save reset token: %w", err)
	}
	return token, nil
}

// Check returns the account owning an unexpired token.
func (r *ResetTokens) Check(ctx context.Context, token string) (*models.User, error) {
	if !wellFormed(token) {
		return nil, ErrInvalidToken
	}
	user, err := r.store.FindByResetTokenHash(ctx, HashToken(token), r.now())
	if err != nil {
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// Consume applies fields and clears the token in a single conditional
// update. A token that is unknown, expired or already used yields
// ErrInvalidToken.
func (r *ResetTokens) Consume(ctx context.Context, token string, fields map[string]any) error {
	if !wellFormed(token) {
		return ErrInvalidToken
	}

	update := maps.Clone(fields)
	if update == nil {
		update = make(map[string]any)
	}
	update["reset_token_hash"] = nil
	update["reset_token_expires"] = nil

	ok, err := r.store.ConsumeResetToken(ctx, HashToken(token), r.now(), update)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// HashToken returns the hex SHA-256 digest stored for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func wellFormed(token string) bool {
	if len(token) != resetTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
