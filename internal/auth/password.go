package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a password with bcrypt at the given cost. Passwords
// longer than 72 bytes are rejected rather than silently truncated.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
