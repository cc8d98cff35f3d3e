package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role values stored in User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Email        string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string `gorm:"not null;size:255" json:"-"`
	Role         string `gorm:"not null;size:10;default:'user'" json:"role"`

	// Files holds the raw file entries in upload order. Entries written by
	// older releases are bare strings; newer ones are objects.
	Files datatypes.JSON `gorm:"type:json" json:"-"`

	ResetTokenHash    *string    `gorm:"size:64;index" json:"-"` // SHA-256 of the emailed reset token
	ResetTokenExpires *time.Time `json:"-"`

	// Forgot-password challenge; the three columns are set and cleared together.
	OTPCode     *string    `gorm:"column:otp_code;size:6" json:"-"`
	OTPExpires  *time.Time `gorm:"column:otp_expires" json:"-"`
	OTPAttempts *int       `gorm:"column:otp_attempts" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
