package notifications

import "context"

type Kind string

const (
	KindPasswordChanged      Kind = "password_changed"
	KindPasswordResetCode    Kind = "password_reset_code"
	KindTwoFactorEnabled     Kind = "two_factor_enabled"
	KindTwoFactorDisabled    Kind = "two_factor_disabled"
	KindRecoveryCodesRenewed Kind = "recovery_codes_regenerated"
	KindRecoveryCodeUsed     Kind = "recovery_code_used"
	KindSessionsRevoked      Kind = "sessions_revoked"
	KindAccountDeleted       Kind = "account_deleted"
)

// Notice is a security-relevant event the account owner should hear about.
type Notice struct {
	Kind   Kind
	UserID string
	Email  string
	// ResetCode is only set for KindPasswordResetCode.
	ResetCode string
}

type Notifier interface {
	SendSecurityNotice(ctx context.Context, n Notice) error
}
