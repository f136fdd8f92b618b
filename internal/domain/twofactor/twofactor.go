package twofactor

import (
	"errors"
	"time"
)

// Result is the terminal state of a single verification challenge.
type Result string

const (
	NotRequired   Result = "not_required"
	ValidTOTP     Result = "valid_totp"
	ValidRecovery Result = "valid_recovery"
	InvalidFormat Result = "invalid_format"
	InvalidCode   Result = "invalid_code"
	MissingCode   Result = "missing_code"
)

// OK reports whether the challenge let the caller through.
func (r Result) OK() bool {
	return r == NotRequired || r == ValidTOTP || r == ValidRecovery
}

const DefaultRecoveryCodeCount = 10

var (
	ErrAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrNotEnabled     = errors.New("two-factor authentication not enabled")
	ErrInvalidCode    = errors.New("invalid two-factor code")
)

type RecoveryCode struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	CodeHash  string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

type Summary struct {
	Total         int        `json:"total"`
	Remaining     int        `json:"remaining"`
	LastGenerated *time.Time `json:"lastGenerated,omitempty"`
}
