package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const resetCodeBytes = 24

// NewResetCode returns a URL-safe single-use password reset code.
func NewResetCode() (string, error) {
	b := make([]byte, resetCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashResetCode is what gets stored; the plaintext only travels to the user.
func HashResetCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}
