package account

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

const (
	minUsernameLength      = 3
	minEmailLength         = 13
	minPasswordLength      = 8
	maxPasswordLength      = 16
	minLoginPasswordLength = 5
	otpLength              = 6
)

// ValidationError is returned for malformed input. Message is safe to show
// to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	passwordCharset = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]+$`)
	otpPattern      = regexp.MustCompile(`^\d{6}$`)
)

// validateEmail expects an already normalized address.
func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return invalid("email", "Please enter a valid email address")
	}
	if len(email) < minEmailLength {
		return invalid("email", "Email must be at least %d characters", minEmailLength)
	}
	return nil
}

func validateUsername(username string) error {
	if len(username) < minUsernameLength {
		return invalid("username", "Username must be at least %d characters", minUsernameLength)
	}
	if len(username) > 50 {
		return invalid("username", "Username must be at most 50 characters")
	}
	return nil
}

func validateOTP(code string) error {
	if !otpPattern.MatchString(strings.TrimSpace(code)) {
		return invalid("otp", "OTP must be 6 digits")
	}
	return nil
}

// validateNewAccountPassword applies the registration policy: 8 to 16
// characters with an uppercase letter, a lowercase letter, a digit and one
// of @$!%*?&, and nothing outside that alphabet.
func validateNewAccountPassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return invalid("password", "Password must be between %d-%d characters", minPasswordLength, maxPasswordLength)
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("@$!%*?&", r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special || !passwordCharset.MatchString(password) {
		return invalid("password", "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character (@$!%%*?&)")
	}
	return nil
}

// validateResetPassword applies the looser policy used when a password is
// replaced: at least 8 characters and a matching confirmation.
func validateResetPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return invalid("password", "Password must be at least %d characters long", minPasswordLength)
	}
	if len(password) > 72 {
		return invalid("password", "Password must be at most 72 bytes")
	}
	if password != confirm {
		return invalid("confirmPassword", "Passwords do not match")
	}
	return nil
}
