package user

import (
	"errors"
	"time"
)

const ProviderPassword = "password"

var (
	ErrNotFound          = errors.New("user not found")
	ErrEmailAlreadyUsed  = errors.New("email already in use")
	ErrCannotManageRole  = errors.New("insufficient privilege for role change")
	ErrResetCodeNotFound = errors.New("password reset code not found")
)

type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	PasswordHash     []byte    `json:"-"` // never expose hash in JSON
	PasswordSalt     []byte    `json:"-"`
	AuthProvider     string    `json:"authProvider"`
	Role             Role      `json:"role"`
	TwoFactorSecret  *string   `json:"-"`
	Balance          int64     `json:"balance"`
	BalanceUpdatedAt time.Time `json:"balanceUpdatedAt"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (u User) TwoFactorEnabled() bool {
	return u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// NewUser carries everything the store needs to insert an account together with
// its opening ledger row.
type NewUser struct {
	Email          string
	Username       string
	PasswordHash   []byte
	PasswordSalt   []byte
	Role           Role
	InitialBalance int64
}

type ResetCode struct {
	// Code is the hash of what was sent to the user, never the plaintext.
	Code       string
	UserID     string
	CreatedAt  time.Time
	ValidUntil time.Time
	UsedAt     *time.Time
}

const ResetCodeTTL = 24 * time.Hour
