package auth

import (
	"github.com/example/ec-shop/internal/apperror"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = apperror.Validation("password must be at least 8 characters", map[string]string{"password": "min 8 characters"})
	ErrPasswordTooLong  = apperror.Validation("password must be at most 72 bytes", map[string]string{"password": "max 72 bytes"})
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
