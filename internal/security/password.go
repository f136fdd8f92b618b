package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/geocoder89/accountcore/internal/domain/user"
	"golang.org/x/crypto/pbkdf2"
)

const (
	PasswordIterations = 100_000
	SaltLength         = 64
	keyLength          = 32
)

// NewSalt returns a fresh random salt. Salts are generated when a password is
// set and never rotated behind the user's back.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// HashPassword derives the PBKDF2-HMAC-SHA256 key for password and salt.
func HashPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PasswordIterations, keyLength, sha256.New)
}

// NewPasswordHash generates a salt and hashes password with it.
func NewPasswordHash(password string) (hash, salt []byte, err error) {
	salt, err = NewSalt()
	if err != nil {
		return nil, nil, err
	}
	return HashPassword(password, salt), salt, nil
}

// VerifyPassword reports whether candidate matches the stored credential. It
// returns false for accounts without a password credential.
func VerifyPassword(u user.User, candidate string) bool {
	if u.AuthProvider != "" && u.AuthProvider != user.ProviderPassword {
		return false
	}
	if len(u.PasswordHash) == 0 || len(u.PasswordSalt) == 0 {
		return false
	}

	computed := HashPassword(candidate, u.PasswordSalt)

	return subtle.ConstantTimeCompare(computed, u.PasswordHash) == 1
}
