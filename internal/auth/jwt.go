// Package auth signs the short-lived tokens that carry state between two
// requests of a two-step flow. Sessions themselves are opaque and live in the
// session store.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeLoginChallenge = "2fa_login"
	PurposeEnrollment     = "2fa_enroll"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID   string `json:"uid"`
	Purpose  string `json:"pur"`
	Remember bool   `json:"rem,omitempty"`
	Secret   string `json:"sec,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IssueLoginChallenge is handed out after the password check when the account
// still needs a second factor.
func (m *Manager) IssueLoginChallenge(userID string, remember bool) (string, time.Time, error) {
	return m.sign(Claims{UserID: userID, Purpose: PurposeLoginChallenge, Remember: remember})
}

// IssueEnrollment binds a not yet confirmed TOTP secret to the user.
func (m *Manager) IssueEnrollment(userID, totpSecret string) (string, time.Time, error) {
	return m.sign(Claims{UserID: userID, Purpose: PurposeEnrollment, Secret: totpSecret})
}

func (m *Manager) VerifyLoginChallenge(token string) (*Claims, error) {
	return m.verify(token, PurposeLoginChallenge)
}

func (m *Manager) VerifyEnrollment(token, userID string) (*Claims, error) {
	c, err := m.verify(token, PurposeEnrollment)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID || c.Secret == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

func (m *Manager) sign(c Claims) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)

	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   c.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, exp, nil
}

func (m *Manager) verify(tokenStr, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Purpose != purpose || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
