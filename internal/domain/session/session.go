package session

import (
	"errors"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/user"
)

// ErrNotFound covers both unknown and expired tokens; callers cannot tell them apart.
var ErrNotFound = errors.New("session not found")

type Session struct {
	ID         string    `json:"-"` // doubles as the bearer token
	UserID     string    `json:"userId"`
	Role       user.Role `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	ValidUntil time.Time `json:"validUntil"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ValidUntil)
}
