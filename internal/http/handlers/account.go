package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/security"
	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	users     UserStore
	sessions  SessionService
	twoFactor TwoFactor
	notifier  Notifier
	currency  currency.Config
	log       *slog.Logger
}

func NewAccountHandler(d Deps) *AccountHandler {
	d = d.withDefaults()
	return &AccountHandler{
		users:     d.Users,
		sessions:  d.Sessions,
		twoFactor: d.TwoFactor,
		notifier:  d.Notifier,
		currency:  d.Currency,
		log:       d.Log,
	}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=128"`
	Code            string `json:"code"`
}

type DeleteAccountRequest struct {
	Password     string `json:"password" binding:"required"`
	Code         string `json:"code"`
	Confirmation string `json:"confirmation" binding:"required,eq=DELETE"`
}

func (h *AccountHandler) Me(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	sess, _ := middlewares.SessionFromContext(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"user":             newUserView(u, h.currency),
		"sessionExpiresAt": sess.ValidUntil,
	})
}

// ChangePassword rotates the credential (with a fresh salt), ends every
// session and hands the caller a new one.
func (h *AccountHandler) ChangePassword(ctx *gin.Context) {
	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	if !security.VerifyPassword(u, req.CurrentPassword) {
		respondInvalidCredentials(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if !checkSecondFactor(ctx, cctx, h.twoFactor, h.notifier, h.log, u, req.Code) {
		return
	}

	hash, salt, err := security.NewPasswordHash(req.NewPassword)
	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	if err := h.users.UpdatePassword(cctx, u.ID, hash, salt); err != nil {
		respondServiceError(ctx, h.log, "users.update_password", err)
		return
	}

	if err := h.sessions.InvalidateAll(cctx, u.ID); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate_all", err)
		return
	}

	sess, err := h.sessions.Create(cctx, u, false)
	if err != nil {
		respondServiceError(ctx, h.log, "sessions.create", err)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindPasswordChanged, UserID: u.ID, Email: u.Email,
	})

	ctx.JSON(http.StatusOK, newSessionView(sess, u, h.currency))
}

func (h *AccountHandler) DeleteAccount(ctx *gin.Context) {
	var req DeleteAccountRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	if !security.VerifyPassword(u, req.Password) {
		respondInvalidCredentials(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	if !checkSecondFactor(ctx, cctx, h.twoFactor, h.notifier, h.log, u, req.Code) {
		return
	}

	if err := h.sessions.InvalidateAll(cctx, u.ID); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate_all", err)
		return
	}

	if err := h.users.Delete(cctx, u.ID); err != nil {
		respondServiceError(ctx, h.log, "users.delete", err)
		return
	}

	h.log.InfoContext(cctx, "account deleted", "user_id", u.ID)
	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindAccountDeleted, UserID: u.ID, Email: u.Email,
	})

	ctx.Status(http.StatusNoContent)
}
