package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginChallengeRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Minute)

	tok, exp, err := m.IssueLoginChallenge("user-1", true)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	c, err := m.VerifyLoginChallenge(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", c.UserID)
	require.True(t, c.Remember)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	m := NewManager("test-secret", time.Minute)

	enroll, _, err := m.IssueEnrollment("user-1", "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = m.VerifyLoginChallenge(enroll)
	require.ErrorIs(t, err, ErrInvalidToken)

	c, err := m.VerifyEnrollment(enroll, "user-1")
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", c.Secret)

	_, err = m.VerifyEnrollment(enroll, "user-2")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAndForeignTokensRejected(t *testing.T) {
	m := NewManager("test-secret", time.Minute)
	start := time.Now().UTC()
	m.now = func() time.Time { return start }

	tok, _, err := m.IssueLoginChallenge("user-1", false)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.VerifyLoginChallenge(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewManager("other-secret", time.Minute)
	foreign, _, err := other.IssueLoginChallenge("user-1", false)
	require.NoError(t, err)

	_, err = NewManager("test-secret", time.Minute).VerifyLoginChallenge(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.VerifyLoginChallenge("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}
