package twofactor

import (
	"context"
	"fmt"

	"github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/security"
)

type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// NewEnrollment creates a secret for u. Nothing is persisted until Enable.
func (v *Verifier) NewEnrollment(u user.User) (Enrollment, error) {
	if u.TwoFactorEnabled() {
		return Enrollment{}, twofactor.ErrAlreadyEnabled
	}

	key, err := security.NewTOTPKey(v.issuer, u.Email)
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}
	return Enrollment{Secret: key.Secret, OTPAuthURL: key.URL}, nil
}

// Enable issues the first batch of recovery codes and then stores secret, once
// code proves the authenticator app holds it. Codes come first: without a
// secret they are inert, and any failure leaves two-factor off.
func (v *Verifier) Enable(ctx context.Context, u user.User, secret, code string) ([]string, error) {
	if u.TwoFactorEnabled() {
		return nil, twofactor.ErrAlreadyEnabled
	}

	c := security.NormalizeCode(code)
	if !security.LooksLikeTOTP(c) || !security.ValidateTOTP(c, secret, v.now()) {
		v.prom.TwoFactorResult(string(twofactor.InvalidCode))
		return nil, twofactor.ErrInvalidCode
	}

	codes, err := v.GenerateRecoveryCodes(ctx, u.ID, twofactor.DefaultRecoveryCodeCount)
	if err != nil {
		return nil, err
	}

	if err := v.users.SetTwoFactorSecret(ctx, u.ID, &secret); err != nil {
		if derr := v.codes.DeleteAll(ctx, u.ID); derr != nil {
			v.log.WarnContext(ctx, "orphaned recovery codes left behind", "user_id", u.ID, "err", derr)
		}
		return nil, fmt.Errorf("store totp secret: %w", err)
	}

	v.log.InfoContext(ctx, "two-factor enabled", "user_id", u.ID)

	return codes, nil
}

// Disable clears the secret and drops every recovery code. Callers verify the
// password and a current code first.
func (v *Verifier) Disable(ctx context.Context, u user.User) error {
	if !u.TwoFactorEnabled() {
		return twofactor.ErrNotEnabled
	}

	if err := v.users.SetTwoFactorSecret(ctx, u.ID, nil); err != nil {
		return fmt.Errorf("clear totp secret: %w", err)
	}
	if err := v.codes.DeleteAll(ctx, u.ID); err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}

	v.log.InfoContext(ctx, "two-factor disabled", "user_id", u.ID)

	return nil
}
