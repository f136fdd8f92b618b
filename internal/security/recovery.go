package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lowercase alphanumerics without the look-alikes 0/1/i/l/o.
const recoveryAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const RecoveryCodeLength = 10

// NewRecoveryCode returns a random code formatted as xxxxx-xxxxx.
func NewRecoveryCode() (string, error) {
	max := big.NewInt(int64(len(recoveryAlphabet)))

	var b strings.Builder
	for i := 0; i < RecoveryCodeLength; i++ {
		if i == RecoveryCodeLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(recoveryAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// NormalizeCode strips whitespace and hyphens so "123 456" and "abcde-fghjk"
// compare the way users expect.
func NormalizeCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, raw)
}

// LooksLikeTOTP reports whether a normalized candidate is exactly TOTPDigits ASCII digits.
func LooksLikeTOTP(code string) bool {
	if len(code) != TOTPDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// LooksLikeRecoveryCode reports whether a normalized candidate has the recovery
// code shape, ignoring ASCII case. Non-ASCII input never matches, even where
// Unicode folding would map it onto the alphabet (the Kelvin sign lowers to k).
func LooksLikeRecoveryCode(code string) bool {
	if len(code) != RecoveryCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= utf8.RuneSelf {
			return false
		}
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if strings.IndexByte(recoveryAlphabet, c) < 0 {
			return false
		}
	}
	return true
}

// HashRecoveryCode hashes the normalized, lowercased code. Codes carry ~49 bits
// of entropy and are single use, so a fast digest is sufficient.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(NormalizeCode(code))))
	return hex.EncodeToString(sum[:])
}
