// Package otp implements the one-time code state machine shared by the
// registration and forgot-password flows, and the emailed reset tokens.
//
// A challenge is Issued, then either Verified, Expired, Exhausted or
// Superseded by a newer issue. Expiry is evaluated lazily on Verify; there
// is no background sweeper. Transition logic is independent of where the
// challenge lives, see Store.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/metrics"
)

var (
	ErrNoChallenge   = errors.New("no active challenge")
	ErrExpired       = errors.New("challenge expired")
	ErrExhausted     = errors.New("too many attempts")
	ErrEmailMismatch = errors.New("email does not match challenge")
	ErrMismatch      = errors.New("code does not match")
	ErrInvalidToken  = errors.New("reset token is invalid or has expired")
)

// MismatchError is returned for a wrong code while attempts remain.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("code does not match (%d attempts remaining)", e.Remaining)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// IsTerminal reports whether err means the caller must request a new code.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoChallenge) || errors.Is(err, ErrExpired) || errors.Is(err, ErrExhausted)
}

// Challenge is one issued code.
type Challenge struct {
	Email     string
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

// Policy bounds a challenge's lifetime and the number of wrong codes.
type Policy struct {
	TTL         time.Duration
	MaxAttempts int
}

// Store persists at most one challenge per subject. Load returns (nil, nil)
// when nothing is stored.
type Store interface {
	Load(ctx context.Context, subject string) (*Challenge, error)
	Save(ctx context.Context, subject string, c Challenge) error
	Clear(ctx context.Context, subject string) error
}

// CompleteFunc runs the flow's side effect once a code is accepted. If it
// fails the challenge stays issued with its attempt count unchanged.
type CompleteFunc func(ctx context.Context, c Challenge) error

type Option func(*options)

type options struct {
	now    func() time.Time
	random io.Reader
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRandom overrides the crypto/rand source.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Machine drives challenges for one flow ("registration", "reset").
type Machine struct {
	flow   string
	store  Store
	policy Policy
	options
}

func NewMachine(flow string, store Store, policy Policy, opts ...Option) *Machine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Machine{
		flow:    flow,
		store:   store,
		policy:  policy,
		options: buildOptions(opts),
	}
}

// Policy returns the machine's limits.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Issue creates a fresh challenge for subject, replacing any earlier one.
func (m *Machine) Issue(ctx context.Context, subject, email string) (Challenge, error) {
	code, err := generateCode(m.random)
	if err != nil {
		return Challenge{}, fmt.Errorf("generate code: %w", err)
	}

	c := Challenge{
		Email:     normalizeEmail(email),
		Code:      code,
		ExpiresAt: m.now().Add(m.policy.TTL),
		Attempts:  0,
	}
	if err := m.store.Save(ctx, subject, c); err != nil {
		return Challenge{}, fmt.Errorf("save challenge: %w", err)
	}

	metrics.RecordOTPIssued(m.flow)
	logger.Debug("otp issued", "flow", m.flow, "expires_at", c.ExpiresAt)
	return c, nil
}

// Verify checks code against the subject's challenge. A non-empty email
// must match the one the code was issued to. Checks run in order: presence,
// email, expiry, attempt limit, code.
func (m *Machine) Verify(ctx context.Context, subject, email, code string, complete CompleteFunc) error {
	c, err := m.store.Load(ctx, subject)
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}
	if c == nil {
		m.record("missing")
		return ErrNoChallenge
	}

	if email != "" && normalizeEmail(email) != c.Email {
		m.record("email_mismatch")
		return ErrEmailMismatch
	}

	if !m.now().Before(c.ExpiresAt) {
		if err := m.store.Clear(ctx, subject); err != nil {
			return fmt.Errorf("clear challenge: %w", err)
		}
		m.record("expired")
		return ErrExpired
	}

	if c.Attempts >= m.policy.MaxAttempts {
		if err := m.store.Clear(ctx, subject); err != nil {
			return fmt.Errorf("clear challenge: %w", err)
		}
		m.record("exhausted")
		return ErrExhausted
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(c.Code)) != 1 {
		c.Attempts++
		if c.Attempts >= m.policy.MaxAttempts {
			if err := m.store.Clear(ctx, subject); err != nil {
				return fmt.Errorf("clear challenge: %w", err)
			}
			m.record("exhausted")
			return ErrExhausted
		}
		if err := m.store.Save(ctx, subject, *c); err != nil {
			return fmt.Errorf("save challenge: %w", err)
		}
		m.record("mismatch")
		return &MismatchError{Remaining: m.policy.MaxAttempts - c.Attempts}
	}

	if complete != nil {
		if err := complete(ctx, *c); err != nil {
			m.record("completion_failed")
			return err
		}
	}

	if err := m.store.Clear(ctx, subject); err != nil {
		return fmt.Errorf("clear challenge: %w", err)
	}
	m.record("verified")
	return nil
}

func (m *Machine) record(result string) {
	metrics.RecordOTPVerification(m.flow, result)
}

// generateCode returns a uniformly random 6-digit code in [100000, 999999].
func generateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
