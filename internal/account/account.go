// Package account implements registration, login and password recovery on
// top of the credential store, the OTP machines and the mailer.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/database/models"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/mail"
	"github.com/agjmills/drive/internal/metrics"
	"github.com/agjmills/drive/internal/otp"
	"github.com/agjmills/drive/internal/store"
	"github.com/alexedwards/scs/v2"
)

// RegistrationSessionKey is the session key holding the registration challenge.
const RegistrationSessionKey = "registration_otp"

var (
	ErrUsernameTaken      = fmt.Errorf("username already exists: %w", store.ErrConflict)
	ErrEmailTaken         = fmt.Errorf("email already registered: %w", store.ErrConflict)
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRegistrationClosed = errors.New("registration is disabled")
	ErrMailUnavailable    = errors.New("email service is not configured")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("role must be user or admin")
)

// IssueResult reports the outcome of sending a code or link. Code and
// ResetLink are only filled when dispatch failed and codes may be revealed.
type IssueResult struct {
	EmailSent bool   `json:"emailSent"`
	Code      string `json:"code,omitempty"`
	ResetLink string `json:"resetLink,omitempty"`
}

type RegisterInput struct {
	Email    string
	OTP      string
	Username string
	Password string
}

type ResetOTPInput struct {
	Email           string
	OTP             string
	NewPassword     string
	ConfirmPassword string
}

type LoginResult struct {
	Token string
	User  *models.User
}

// Service orchestrates the account flows.
type Service struct {
	cfg          *config.Config
	users        store.CredentialStore
	issuer       *auth.Issuer
	sender       mail.Sender
	registration *otp.Machine
	reset        *otp.Machine
	tokens       *otp.ResetTokens
}

// NewService wires the account flows. The registration challenge lives in
// the scs session; the forgot-password challenge lives on the user row.
func NewService(cfg *config.Config, users store.CredentialStore, sessions *scs.SessionManager, issuer *auth.Issuer, sender mail.Sender, opts ...otp.Option) *Service {
	return &Service{
		cfg:    cfg,
		users:  users,
		issuer: issuer,
		sender: sender,
		registration: otp.NewMachine("registration",
			otp.NewSessionStore(sessions, RegistrationSessionKey),
			otp.Policy{TTL: cfg.RegistrationOTPTTL, MaxAttempts: cfg.RegistrationOTPAttempts},
			opts...),
		reset: otp.NewMachine("reset",
			otp.NewUserStore(users),
			otp.Policy{TTL: cfg.ResetOTPTTL, MaxAttempts: cfg.ResetOTPAttempts},
			opts...),
		tokens: otp.NewResetTokens(users, cfg.ResetTokenTTL, opts...),
	}
}

// RevealCodes reports whether codes are returned to callers when mail fails.
func (s *Service) RevealCodes() bool {
	return s.cfg.RevealOTP && !s.cfg.IsProduction()
}

// StartRegistration issues a registration code for email and mails it.
// Emails that already belong to an account are rejected before any code
// is issued.
func (s *Service) StartRegistration(ctx context.Context, email string) (IssueResult, error) {
	if !s.cfg.EnableRegistration {
		return IssueResult{}, ErrRegistrationClosed
	}
	email = store.NormalizeIdentity(email)
	if err := validateEmail(email); err != nil {
		return IssueResult{}, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return IssueResult{}, err
	}
	if existing != nil {
		return IssueResult{}, ErrEmailTaken
	}
	if s.sender == nil {
		return IssueResult{}, ErrMailUnavailable
	}

	challenge, err := s.registration.Issue(ctx, "", email)
	if err != nil {
		return IssueResult{}, err
	}

	msg, err := mail.RegistrationOTP(email, challenge.Code, s.registration.Policy().TTL)
	if err != nil {
		return IssueResult{}, err
	}
	return s.dispatch(ctx, msg, challenge.Code, ""), nil
}

// CompleteRegistration verifies the session code and creates the account.
// A taken username or email fails the completion but leaves the code usable.
func (s *Service) CompleteRegistration(ctx context.Context, in RegisterInput) (*models.User, error) {
	if !s.cfg.EnableRegistration {
		return nil, ErrRegistrationClosed
	}
	in.Email = store.NormalizeIdentity(in.Email)
	in.Username = store.NormalizeIdentity(in.Username)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validateOTP(in.OTP); err != nil {
		return nil, err
	}
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	var created *models.User
	err := s.registration.Verify(ctx, "", in.Email, in.OTP, func(ctx context.Context, _ otp.Challenge) error {
		user, err := s.create(ctx, in)
		if err != nil {
			return err
		}
		created = user
		return nil
	})
	metrics.RecordRegistration(err == nil)
	if err != nil {
		return nil, err
	}

	logger.Info("user registered", "user_id", created.ID, "username", created.Username, "verified", true)
	return created, nil
}

// Register creates an account without an emailed code. Only used when
// registration codes are disabled.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if !s.cfg.EnableRegistration {
		return nil, ErrRegistrationClosed
	}
	in.Email = store.NormalizeIdentity(in.Email)
	in.Username = store.NormalizeIdentity(in.Username)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	user, err := s.create(ctx, in)
	metrics.RecordRegistration(err == nil)
	if err != nil {
		return nil, err
	}

	logger.Info("user registered", "user_id", user.ID, "username", user.Username, "verified", false)
	return user, nil
}

func validateRegistration(in RegisterInput) error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	return validateNewAccountPassword(in.Password)
}

func (s *Service) create(ctx context.Context, in RegisterInput) (*models.User, error) {
	if existing, err := s.users.FindByUsername(ctx, in.Username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrUsernameTaken
	}
	if existing, err := s.users.FindByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and issues an auth token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = store.NormalizeIdentity(username)
	if len(username) < minUsernameLength || len(password) < minLoginPasswordLength {
		metrics.RecordLogin(false)
		return LoginResult{}, invalid("username", "Invalid data")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, err
	}
	if user == nil || !auth.VerifyPassword(user.PasswordHash, password) {
		metrics.RecordLogin(false)
		logger.Info("login failed", "username", username)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(user.ID, user.Username, user.Email, user.Role, s.cfg.TokenDuration)
	if err != nil {
		return LoginResult{}, err
	}

	metrics.RecordLogin(true)
	logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return LoginResult{Token: token, User: user}, nil
}

// RequestPasswordOTP issues a forgot-password code when email belongs to an
// account. Unknown emails get an empty result and persist nothing.
func (s *Service) RequestPasswordOTP(ctx context.Context, email string) (IssueResult, error) {
	email = store.NormalizeIdentity(email)
	if err := validateEmail(email); err != nil {
		return IssueResult{}, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return IssueResult{}, err
	}
	if user == nil {
		logger.Debug("password otp requested for unknown email")
		return IssueResult{}, nil
	}

	challenge, err := s.reset.Issue(ctx, user.Email, user.Email)
	if err != nil {
		return IssueResult{}, err
	}

	msg, err := mail.ResetOTP(user.Email, user.Username, challenge.Code, s.reset.Policy().TTL)
	if err != nil {
		return IssueResult{}, err
	}
	return s.dispatch(ctx, msg, challenge.Code, ""), nil
}

// ResetPasswordWithOTP verifies a forgot-password code and replaces the
// password. The new hash and the cleared challenge are written together.
func (s *Service) ResetPasswordWithOTP(ctx context.Context, in ResetOTPInput) error {
	email := store.NormalizeIdentity(in.Email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validateOTP(in.OTP); err != nil {
		return err
	}
	if err := validateResetPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return otp.ErrNoChallenge
	}

	return s.reset.Verify(ctx, email, email, in.OTP, func(ctx context.Context, _ otp.Challenge) error {
		hash, err := auth.HashPassword(in.NewPassword, s.cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fields := otp.ClearedFields()
		fields["password_hash"] = hash
		if err := s.users.UpdateFields(ctx, user.ID, fields); err != nil {
			return err
		}
		logger.Info("password reset", "user_id", user.ID, "method", "otp")
		return nil
	})
}

// RequestResetLink emails a single-use reset link when email belongs to an
// account.
func (s *Service) RequestResetLink(ctx context.Context, email string) (IssueResult, error) {
	email = store.NormalizeIdentity(email)
	if err := validateEmail(email); err != nil {
		return IssueResult{}, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return IssueResult{}, err
	}
	if user == nil {
		logger.Debug("reset link requested for unknown email")
		return IssueResult{}, nil
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return IssueResult{}, err
	}
	link := s.cfg.BaseURL + "/user/reset-password/" + token

	msg, err := mail.ResetLink(user.Email, user.Username, link, s.cfg.ResetTokenTTL)
	if err != nil {
		return IssueResult{}, err
	}
	return s.dispatch(ctx, msg, "", link), nil
}

// CheckResetToken returns the account an unexpired reset token belongs to.
func (s *Service) CheckResetToken(ctx context.Context, token string) (*models.User, error) {
	return s.tokens.Check(ctx, token)
}

// ResetPasswordWithToken consumes token and sets the new password in the
// same update.
func (s *Service) ResetPasswordWithToken(ctx context.Context, token, password, confirm string) error {
	if err := validateResetPassword(password, confirm); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	fields := otp.ClearedFields()
	fields["password_hash"] = hash
	if err := s.tokens.Consume(ctx, token, fields); err != nil {
		return err
	}
	logger.Info("password reset", "method", "token")
	return nil
}

// Find looks an account up by username, then by email.
func (s *Service) Find(ctx context.Context, identity string) (*models.User, error) {
	identity = store.NormalizeIdentity(identity)
	user, err := s.users.FindByUsername(ctx, identity)
	if err != nil || user != nil {
		return user, err
	}
	user, err = s.users.FindByEmail(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// SetPassword replaces a password on behalf of an operator.
func (s *Service) SetPassword(ctx context.Context, identity, password string) (*models.User, error) {
	if err := validateResetPassword(password, password); err != nil {
		return nil, err
	}
	return s.update(ctx, identity, func(*models.User) (map[string]any, error) {
		hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		fields := otp.ClearedFields()
		fields["password_hash"] = hash
		fields["reset_token_hash"] = nil
		fields["reset_token_expires"] = nil
		return fields, nil
	})
}

// SetEmail changes an account's email address.
func (s *Service) SetEmail(ctx context.Context, identity, email string) (*models.User, error) {
	email = store.NormalizeIdentity(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	user, err := s.update(ctx, identity, func(*models.User) (map[string]any, error) {
		return map[string]any{"email": email}, nil
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrEmailTaken
	}
	return user, err
}

// SetRole grants or revokes admin.
func (s *Service) SetRole(ctx context.Context, identity, role string) (*models.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, ErrInvalidRole
	}
	return s.update(ctx, identity, func(*models.User) (map[string]any, error) {
		return map[string]any{"role": role}, nil
	})
}

func (s *Service) update(ctx context.Context, identity string, fields func(*models.User) (map[string]any, error)) (*models.User, error) {
	user, err := s.Find(ctx, identity)
	if err != nil {
		return nil, err
	}
	update, err := fields(user)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(ctx, user.ID, update); err != nil {
		return nil, err
	}
	return s.users.FindByID(ctx, user.ID)
}

func (s *Service) dispatch(ctx context.Context, msg mail.Message, code, link string) IssueResult {
	result := IssueResult{EmailSent: mail.Dispatch(ctx, s.sender, s.cfg.EmailTimeout, msg)}
	if !result.EmailSent && s.RevealCodes() {
		logger.Warn("email dispatch failed, revealing code to caller", "kind", msg.Kind)
		result.Code = code
		result.ResetLink = link
	}
	return result
}
