// Package twofactor verifies second-factor codes and manages a user's TOTP
// enrollment and recovery codes.
package twofactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/geocoder89/accountcore/internal/security"
)

// CodeStore persists hashed recovery codes. Consume must check and mark a code
// in one atomic step.
type CodeStore interface {
	Replace(ctx context.Context, userID string, hashes []string, at time.Time) error
	Consume(ctx context.Context, userID, hash string, at time.Time) (bool, error)
	Summary(ctx context.Context, userID string) (twofactor.Summary, error)
	DeleteAll(ctx context.Context, userID string) error
}

type SecretStore interface {
	SetTwoFactorSecret(ctx context.Context, userID string, secret *string) error
}

type Verifier struct {
	codes  CodeStore
	users  SecretStore
	issuer string
	now    func() time.Time
	log    *slog.Logger
	prom   *observability.Prom
}

func NewVerifier(codes CodeStore, users SecretStore, issuer string, log *slog.Logger, prom *observability.Prom) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		codes:  codes,
		users:  users,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
		prom:   prom,
	}
}

// WithClock returns a copy of v reading time from now.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify runs a single challenge for u. The error is non-nil only when the
// recovery code store fails.
func (v *Verifier) Verify(ctx context.Context, u user.User, code string) (twofactor.Result, error) {
	res, err := v.verify(ctx, u, code)
	if err != nil {
		v.prom.TwoFactorResult("error")
		return res, err
	}
	v.prom.TwoFactorResult(string(res))
	if res == twofactor.ValidRecovery {
		v.log.InfoContext(ctx, "recovery code consumed", "user_id", u.ID)
	}
	return res, nil
}

func (v *Verifier) verify(ctx context.Context, u user.User, code string) (twofactor.Result, error) {
	if !u.TwoFactorEnabled() {
		return twofactor.NotRequired, nil
	}

	c := security.NormalizeCode(code)
	if c == "" {
		return twofactor.MissingCode, nil
	}

	isTOTP := security.LooksLikeTOTP(c)
	isRecovery := security.LooksLikeRecoveryCode(c)

	if isTOTP && security.ValidateTOTP(c, *u.TwoFactorSecret, v.now()) {
		return twofactor.ValidTOTP, nil
	}

	if isRecovery {
		ok, err := v.codes.Consume(ctx, u.ID, security.HashRecoveryCode(c), v.now())
		if err != nil {
			return twofactor.InvalidCode, fmt.Errorf("consume recovery code: %w", err)
		}
		if ok {
			return twofactor.ValidRecovery, nil
		}
		return twofactor.InvalidCode, nil
	}

	if isTOTP {
		return twofactor.InvalidCode, nil
	}

	return twofactor.InvalidFormat, nil
}

// GenerateRecoveryCodes replaces the user's codes with n fresh ones and
// returns the plaintext. The plaintext is never stored.
func (v *Verifier) GenerateRecoveryCodes(ctx context.Context, userID string, n int) ([]string, error) {
	if n <= 0 {
		n = twofactor.DefaultRecoveryCodeCount
	}

	plain := make([]string, 0, n)
	hashes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for len(plain) < n {
		c, err := security.NewRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}
		h := security.HashRecoveryCode(c)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		plain = append(plain, c)
		hashes = append(hashes, h)
	}

	if err := v.codes.Replace(ctx, userID, hashes, v.now()); err != nil {
		return nil, fmt.Errorf("store recovery codes: %w", err)
	}

	v.log.InfoContext(ctx, "recovery codes generated", "user_id", userID, "count", n)

	return plain, nil
}

func (v *Verifier) RecoveryCodesSummary(ctx context.Context, userID string) (twofactor.Summary, error) {
	return v.codes.Summary(ctx, userID)
}
