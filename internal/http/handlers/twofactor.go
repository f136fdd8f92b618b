package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	tfa "github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/security"
	"github.com/gin-gonic/gin"
)

type TwoFactorHandler struct {
	twoFactor TwoFactor
	tokens    ChallengeTokens
	notifier  Notifier
	log       *slog.Logger
}

func NewTwoFactorHandler(d Deps) *TwoFactorHandler {
	d = d.withDefaults()
	return &TwoFactorHandler{
		twoFactor: d.TwoFactor,
		tokens:    d.Tokens,
		notifier:  d.Notifier,
		log:       d.Log,
	}
}

type EnableTwoFactorRequest struct {
	EnrollmentToken string `json:"enrollmentToken" binding:"required"`
	Code            string `json:"code" binding:"required"`
}

type DisableTwoFactorRequest struct {
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

type RegenerateRecoveryCodesRequest struct {
	Code string `json:"code" binding:"required"`
}

// Setup starts enrollment. The secret travels back inside a signed token so
// nothing is stored until the user proves their app holds it.
func (h *TwoFactorHandler) Setup(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	enr, err := h.twoFactor.NewEnrollment(u)
	if err != nil {
		respondServiceError(ctx, h.log, "twofactor.enrollment", err)
		return
	}

	token, expiresAt, err := h.tokens.IssueEnrollment(u.ID, enr.Secret)
	if err != nil {
		RespondInternal(ctx, "Could not start enrollment")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"secret":          enr.Secret,
		"otpauthUrl":      enr.OTPAuthURL,
		"enrollmentToken": token,
		"expiresAt":       expiresAt,
	})
}

func (h *TwoFactorHandler) Enable(ctx *gin.Context) {
	var req EnableTwoFactorRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	claims, err := h.tokens.VerifyEnrollment(req.EnrollmentToken, u.ID)
	if err != nil {
		RespondBadRequest(ctx, "Enrollment expired or invalid", gin.H{"field": "enrollmentToken"})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	codes, err := h.twoFactor.Enable(cctx, u, claims.Secret, req.Code)
	if err != nil {
		respondServiceError(ctx, h.log, "twofactor.enable", err)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindTwoFactorEnabled, UserID: u.ID, Email: u.Email,
	})

	ctx.JSON(http.StatusOK, gin.H{"recoveryCodes": codes})
}

func (h *TwoFactorHandler) Disable(ctx *gin.Context) {
	var req DisableTwoFactorRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	if !u.TwoFactorEnabled() {
		respondServiceError(ctx, h.log, "twofactor.disable", tfa.ErrNotEnabled)
		return
	}

	if !security.VerifyPassword(u, req.Password) {
		respondInvalidCredentials(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if !checkSecondFactor(ctx, cctx, h.twoFactor, h.notifier, h.log, u, req.Code) {
		return
	}

	if err := h.twoFactor.Disable(cctx, u); err != nil {
		respondServiceError(ctx, h.log, "twofactor.disable", err)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindTwoFactorDisabled, UserID: u.ID, Email: u.Email,
	})

	ctx.Status(http.StatusNoContent)
}

func (h *TwoFactorHandler) RecoveryCodesSummary(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	sum, err := h.twoFactor.RecoveryCodesSummary(cctx, u.ID)
	if err != nil {
		respondServiceError(ctx, h.log, "twofactor.summary", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"enabled": u.TwoFactorEnabled(),
		"summary": sum,
	})
}

// RegenerateRecoveryCodes replaces the whole batch. The plaintext codes are in
// this response only.
func (h *TwoFactorHandler) RegenerateRecoveryCodes(ctx *gin.Context) {
	var req RegenerateRecoveryCodesRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	if !u.TwoFactorEnabled() {
		respondServiceError(ctx, h.log, "twofactor.regenerate", tfa.ErrNotEnabled)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if !checkSecondFactor(ctx, cctx, h.twoFactor, h.notifier, h.log, u, req.Code) {
		return
	}

	codes, err := h.twoFactor.GenerateRecoveryCodes(cctx, u.ID, tfa.DefaultRecoveryCodeCount)
	if err != nil {
		respondServiceError(ctx, h.log, "twofactor.regenerate", err)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindRecoveryCodesRenewed, UserID: u.ID, Email: u.Email,
	})

	ctx.JSON(http.StatusOK, gin.H{"recoveryCodes": codes})
}
