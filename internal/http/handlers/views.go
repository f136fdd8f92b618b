package handlers

import (
	"time"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
)

type UserView struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Username         string          `json:"username"`
	Role             user.Role       `json:"role"`
	TwoFactorEnabled bool            `json:"twoFactorEnabled"`
	Balance          currency.Amount `json:"balance"`
	CreatedAt        time.Time       `json:"createdAt"`
}

func newUserView(u user.User, cur currency.Config) UserView {
	return UserView{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled(),
		Balance:          cur.Amount(u.Balance),
		CreatedAt:        u.CreatedAt,
	}
}

type SessionView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}

func newSessionView(s session.Session, u user.User, cur currency.Config) SessionView {
	return SessionView{Token: s.ID, ExpiresAt: s.ValidUntil, User: newUserView(u, cur)}
}

type EntryView struct {
	ID           int64             `json:"id"`
	UserID       string            `json:"userId"`
	Delta        currency.Amount   `json:"delta"`
	BalanceAfter currency.Amount   `json:"balanceAfter"`
	Reason       string            `json:"reason,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ActorUserID  *string           `json:"actorUserId,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func newEntryView(e ledger.Entry, cur currency.Config) EntryView {
	return EntryView{
		ID:           e.ID,
		UserID:       e.UserID,
		Delta:        cur.Amount(e.Delta),
		BalanceAfter: cur.Amount(e.BalanceAfter),
		Reason:       e.Reason,
		Metadata:     e.Metadata,
		ActorUserID:  e.ActorUserID,
		CreatedAt:    e.CreatedAt,
	}
}

type AuditView struct {
	UserID   string          `json:"userId"`
	Stored   currency.Amount `json:"stored"`
	Computed currency.Amount `json:"computed"`
	Drift    currency.Amount `json:"drift"`
	Fixed    bool            `json:"fixed"`
	Entry    *EntryView      `json:"entry,omitempty"`
}

func newAuditView(a ledger.Audit, cur currency.Config) AuditView {
	v := AuditView{
		UserID:   a.UserID,
		Stored:   cur.Amount(a.Stored),
		Computed: cur.Amount(a.Computed),
		Drift:    cur.Amount(a.Drift),
		Fixed:    a.Fixed,
	}
	if a.Entry != nil {
		ev := newEntryView(*a.Entry, cur)
		v.Entry = &ev
	}
	return v
}
