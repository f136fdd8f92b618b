package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	tfa "github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// respondServiceError maps the domain sentinels onto the error envelope.
// Anything unrecognised is a storage failure: logged, then answered with 500.
func respondServiceError(ctx *gin.Context, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, user.ErrNotFound), errors.Is(err, ledger.ErrUserNotFound):
		RespondNotFound(ctx, "User not found")
	case errors.Is(err, ledger.ErrNegativeBalance):
		RespondError(ctx, http.StatusBadRequest, "negative_balance", "Balance cannot go negative", nil)
	case errors.Is(err, ledger.ErrInvalidLimit):
		RespondBadRequest(ctx, "limit must be between 1 and 500", gin.H{"field": "limit"})
	case errors.Is(err, ledger.ErrOverflow), errors.Is(err, currency.ErrPrecision):
		RespondError(ctx, http.StatusBadRequest, "amount_out_of_range", "Amount out of range", nil)
	case errors.Is(err, user.ErrEmailAlreadyUsed):
		RespondConflict(ctx, "email_taken", "Email is already registered")
	case errors.Is(err, user.ErrCannotManageRole):
		RespondForbidden(ctx, "Insufficient privilege for this role change")
	case errors.Is(err, tfa.ErrAlreadyEnabled):
		RespondConflict(ctx, "two_factor_enabled", "Two-factor authentication is already enabled")
	case errors.Is(err, tfa.ErrNotEnabled):
		RespondConflict(ctx, "two_factor_not_enabled", "Two-factor authentication is not enabled")
	case errors.Is(err, tfa.ErrInvalidCode):
		RespondUnauthorized(ctx, "invalid_code", "Invalid two-factor code")
	default:
		log.ErrorContext(ctx.Request.Context(), "request failed", "op", op, "err", err)
		RespondInternal(ctx, "Something went wrong")
	}
}

func respondInvalidCredentials(ctx *gin.Context) {
	RespondUnauthorized(ctx, "invalid_credentials", "Invalid credentials")
}

// secondFactorMessage tells the caller what is wrong with a rejected code
// without saying whether the code was a TOTP or a recovery code.
func secondFactorMessage(res tfa.Result) (code, message string) {
	switch res {
	case tfa.MissingCode:
		return "two_factor_required", "A two-factor code is required"
	case tfa.InvalidFormat:
		return "invalid_code_format", "Code must be 6 digits or a recovery code"
	default:
		return "invalid_code", "Invalid two-factor code"
	}
}
