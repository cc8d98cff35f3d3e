// Package store persists user accounts. Lookups that find nothing return
// (nil, nil); only genuine storage failures produce an error.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agjmills/drive/internal/database/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrConflict is returned when a write would violate a uniqueness constraint.
var ErrConflict = errors.New("store: unique constraint violated")

// CredentialStore is the persistence contract for user accounts.
type CredentialStore interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	Delete(ctx context.Context, id uint) error
	// ConsumeResetToken applies fields to the user holding an unexpired
	// token with the given hash and reports whether a row was updated.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, fields map[string]any) (bool, error)
}

// GormStore implements CredentialStore on sqlite or postgres via gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// NormalizeIdentity lowercases and trims a username or email.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *GormStore) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", NormalizeIdentity(username))
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", NormalizeIdentity(email))
}

func (s *GormStore) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	if tokenHash == "" {
		return nil, nil
	}
	return s.first(ctx, "reset_token_hash = ? AND reset_token_expires > ?", tokenHash, now)
}

func (s *GormStore) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *GormStore) Create(ctx context.Context, user *models.User) error {
	user.Username = NormalizeIdentity(user.Username)
	user.Email = NormalizeIdentity(user.Email)
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if len(user.Files) == 0 {
		user.Files = []byte("[]")
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return translate("create user", err)
	}
	return nil
}

func (s *GormStore) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate("update user", res.Error)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.User{}, id).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *GormStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, fields map[string]any) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("reset_token_hash = ? AND reset_token_expires > ?", tokenHash, now).
		Updates(fields)
	if res.Error != nil {
		return false, translate("consume reset token", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Ping reports whether the underlying database is reachable.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	// Drivers without an error translator (modernc) only expose the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
