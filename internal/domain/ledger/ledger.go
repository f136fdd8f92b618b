package ledger

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound    = errors.New("ledger owner not found")
	ErrNegativeBalance = errors.New("balance cannot go negative")
	ErrInvalidLimit    = errors.New("limit must be between 1 and 500")
	ErrOverflow        = errors.New("balance out of range")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	ReasonInitialBalance = "initial_balance"
	ReasonReconciliation = "reconciliation"
)

// Entry is one immutable row of the append-only ledger. BalanceAfter is the
// snapshot written with the row, never recomputed.
type Entry struct {
	ID           int64             `json:"id"`
	UserID       string            `json:"userId"`
	Delta        int64             `json:"delta"`
	BalanceAfter int64             `json:"balanceAfter"`
	Reason       string            `json:"reason,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ActorUserID  *string           `json:"actorUserId,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Memo describes why a mutation happened and who asked for it.
type Memo struct {
	Reason      string
	Metadata    map[string]string
	ActorUserID *string
}

// Draft is what a mutation wants appended. The store fills in BalanceAfter,
// ID and CreatedAt.
type Draft struct {
	Delta       int64
	Reason      string
	Metadata    map[string]string
	ActorUserID *string
}

type Balance struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListFilter bounds are exclusive. Results are newest first.
type ListFilter struct {
	Limit  int
	Before *time.Time
	After  *time.Time
}

// Audit compares the stored balance column against the ledger sum.
type Audit struct {
	UserID   string `json:"userId"`
	Stored   int64  `json:"stored"`
	Computed int64  `json:"computed"`
	Drift    int64  `json:"drift"`
	Fixed    bool   `json:"fixed"`
	Entry    *Entry `json:"entry,omitempty"`
}
