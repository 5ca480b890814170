package auth

import (
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// weakPassword reports whether password fails the minimum strength bar.
func weakPassword(password string) bool {
	return len(password) < minPasswordLength
}

// hashPassword returns a salted bcrypt hash of password.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword compares password against the stored hash in constant
// time (bcrypt.CompareHashAndPassword is constant-time over the hash
// comparison itself, which runs in constant time).
func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
