package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/accountcore/internal/auth"
	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/session"
	tfa "github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/twofactor"
)

// Keep these small so tests can fake them easily.

type UserStore interface {
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	UpdateRole(ctx context.Context, id string, role user.Role) error
	UpdatePassword(ctx context.Context, id string, hash, salt []byte) error
	Delete(ctx context.Context, id string) error
	CreateResetCode(ctx context.Context, rc user.ResetCode) error
	ResetPassword(ctx context.Context, code string, hash, salt []byte) (string, error)
}

type SessionService interface {
	Create(ctx context.Context, u user.User, remember bool) (session.Session, error)
	Invalidate(ctx context.Context, token string) error
	InvalidateAll(ctx context.Context, userID string) error
}

type TwoFactor interface {
	Verify(ctx context.Context, u user.User, code string) (tfa.Result, error)
	NewEnrollment(u user.User) (twofactor.Enrollment, error)
	Enable(ctx context.Context, u user.User, secret, code string) ([]string, error)
	Disable(ctx context.Context, u user.User) error
	GenerateRecoveryCodes(ctx context.Context, userID string, n int) ([]string, error)
	RecoveryCodesSummary(ctx context.Context, userID string) (tfa.Summary, error)
}

type ChallengeTokens interface {
	IssueLoginChallenge(userID string, remember bool) (string, time.Time, error)
	VerifyLoginChallenge(token string) (*auth.Claims, error)
	IssueEnrollment(userID, totpSecret string) (string, time.Time, error)
	VerifyEnrollment(token, userID string) (*auth.Claims, error)
}

type Ledger interface {
	Currency() currency.Config
	Adjust(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error)
	Set(ctx context.Context, userID string, target int64, memo ledger.Memo) (ledger.Entry, error)
	Balance(ctx context.Context, userID string) (ledger.Balance, error)
	List(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error)
}

type Reconciler interface {
	VerifyBalance(ctx context.Context, userID string, autoFix bool) (ledger.Audit, error)
	VerifyAll(ctx context.Context, autoFix bool) ([]ledger.Audit, error)
}

// Notifier delivers security notices without blocking the request.
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notice)
}

// Deps is everything the API handlers need. Each constructor keeps the parts
// it uses.
type Deps struct {
	Users      UserStore
	Sessions   SessionService
	TwoFactor  TwoFactor
	Tokens     ChallengeTokens
	Ledger     Ledger
	Reconciler Reconciler
	Notifier   Notifier

	Currency       currency.Config
	InitialBalance int64
	// Empty disables admin-initiated deletion.
	AdminDeletionSecret string

	Log *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = discardNotifier{}
	}
	return d
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, notifications.Notice) {}
