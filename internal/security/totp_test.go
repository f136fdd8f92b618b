package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateTOTP_Window(t *testing.T) {
	key, err := NewTOTPKey("accountcore", "alice@example.com")
	require.NoError(t, err)
	require.Contains(t, key.URL, "otpauth://totp/")

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code, err := TOTPCode(key.Secret, issued)
	require.NoError(t, err)
	require.True(t, LooksLikeTOTP(code))

	require.True(t, ValidateTOTP(code, key.Secret, issued))
	require.True(t, ValidateTOTP(code, key.Secret, issued.Add(TOTPPeriod*time.Second)))
	require.True(t, ValidateTOTP(code, key.Secret, issued.Add(-TOTPPeriod*time.Second)))

	require.False(t, ValidateTOTP(code, key.Secret, issued.Add(3*TOTPPeriod*time.Second)))
}

func TestValidateTOTP_BadInput(t *testing.T) {
	key, err := NewTOTPKey("accountcore", "bob@example.com")
	require.NoError(t, err)

	require.False(t, ValidateTOTP("12345", key.Secret, time.Now()))
	require.False(t, ValidateTOTP("123456", "not base32!!", time.Now()))
}
