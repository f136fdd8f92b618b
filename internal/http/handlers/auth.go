package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/security"
	"github.com/gin-gonic/gin"
)

// Hashing against a throwaway salt keeps unknown-email logins as slow as
// wrong-password ones.
var timingSalt = make([]byte, security.SaltLength)

type AuthHandler struct {
	users          UserStore
	sessions       SessionService
	twoFactor      TwoFactor
	tokens         ChallengeTokens
	notifier       Notifier
	currency       currency.Config
	initialBalance int64
	log            *slog.Logger
}

func NewAuthHandler(d Deps) *AuthHandler {
	d = d.withDefaults()
	return &AuthHandler{
		users:          d.Users,
		sessions:       d.Sessions,
		twoFactor:      d.TwoFactor,
		tokens:         d.Tokens,
		notifier:       d.Notifier,
		currency:       d.Currency,
		initialBalance: d.InitialBalance,
		log:            d.Log,
	}
}

type SignUpRequest struct {
	Email      string `json:"email" binding:"required,email,max=254"`
	Username   string `json:"username" binding:"required,min=3,max=32"`
	Password   string `json:"password" binding:"required,min=8,max=128"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	Code       string `json:"code"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginTwoFactorRequest struct {
	ChallengeToken string `json:"challengeToken" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=128"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, salt, err := security.NewPasswordHash(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.Create(cctx, user.NewUser{
		Email:          strings.TrimSpace(req.Email),
		Username:       strings.TrimSpace(req.Username),
		PasswordHash:   hash,
		PasswordSalt:   salt,
		Role:           user.RoleUser,
		InitialBalance: h.initialBalance,
	})
	if err != nil {
		respondServiceError(ctx, h.log, "users.create", err)
		return
	}

	sess, err := h.sessions.Create(cctx, u, req.RememberMe)
	if err != nil {
		respondServiceError(ctx, h.log, "sessions.create", err)
		return
	}

	ctx.JSON(http.StatusCreated, newSessionView(sess, u, h.currency))
}

// Login checks the password and, for 2FA accounts, either the inline code or
// hands back a challenge token for /auth/login/2fa.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			respondServiceError(ctx, h.log, "users.get_by_email", err)
			return
		}
		security.HashPassword(req.Password, timingSalt)
		respondInvalidCredentials(ctx)
		return
	}

	if !security.VerifyPassword(u, req.Password) {
		respondInvalidCredentials(ctx)
		return
	}

	if u.TwoFactorEnabled() {
		if strings.TrimSpace(req.Code) == "" {
			token, expiresAt, err := h.tokens.IssueLoginChallenge(u.ID, req.RememberMe)
			if err != nil {
				RespondInternal(ctx, "Could not start two-factor challenge")
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"twoFactorRequired": true,
				"challengeToken":    token,
				"expiresAt":         expiresAt,
			})
			return
		}

		res, err := h.twoFactor.Verify(cctx, u, req.Code)
		if err != nil {
			respondServiceError(ctx, h.log, "twofactor.verify", err)
			return
		}
		if !res.OK() {
			respondInvalidCredentials(ctx)
			return
		}
		noteRecoveryUse(ctx, h.notifier, u, res)
	}

	h.startSession(ctx, cctx, u, req.RememberMe)
}

func (h *AuthHandler) LoginTwoFactor(ctx *gin.Context) {
	var req LoginTwoFactorRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.tokens.VerifyLoginChallenge(req.ChallengeToken)
	if err != nil {
		RespondUnauthorized(ctx, "invalid_challenge", "Challenge expired or invalid")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnauthorized(ctx, "invalid_challenge", "Challenge expired or invalid")
			return
		}
		respondServiceError(ctx, h.log, "users.get_by_id", err)
		return
	}

	res, err := h.twoFactor.Verify(cctx, u, req.Code)
	if err != nil {
		respondServiceError(ctx, h.log, "twofactor.verify", err)
		return
	}
	if !res.OK() {
		code, msg := secondFactorMessage(res)
		RespondUnauthorized(ctx, code, msg)
		return
	}
	noteRecoveryUse(ctx, h.notifier, u, res)

	h.startSession(ctx, cctx, u, claims.Remember)
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	token, ok := middlewares.BearerToken(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing or invalid Authorization header")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.sessions.Invalidate(cctx, token); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.sessions.InvalidateAll(cctx, u.ID); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate_all", err)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindSessionsRevoked, UserID: u.ID, Email: u.Email,
	})

	ctx.Status(http.StatusNoContent)
}

// RequestPasswordReset always answers 202 so the endpoint cannot be used to
// find out which emails are registered.
func (h *AuthHandler) RequestPasswordReset(ctx *gin.Context) {
	var req PasswordResetRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	accepted := gin.H{"status": "accepted"}

	u, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.ErrorContext(cctx, "password reset lookup failed", "err", err)
		}
		ctx.JSON(http.StatusAccepted, accepted)
		return
	}

	code, err := security.NewResetCode()
	if err != nil {
		RespondInternal(ctx, "Could not issue reset code")
		return
	}

	now := time.Now().UTC()
	err = h.users.CreateResetCode(cctx, user.ResetCode{
		Code:       security.HashResetCode(code),
		UserID:     u.ID,
		CreatedAt:  now,
		ValidUntil: now.Add(user.ResetCodeTTL),
	})
	if err != nil {
		h.log.ErrorContext(cctx, "password reset code not stored", "user_id", u.ID, "err", err)
		ctx.JSON(http.StatusAccepted, accepted)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindPasswordResetCode, UserID: u.ID, Email: u.Email, ResetCode: code,
	})

	ctx.JSON(http.StatusAccepted, accepted)
}

// ConfirmPasswordReset consumes the code, sets the new password and ends
// every session the account had.
func (h *AuthHandler) ConfirmPasswordReset(ctx *gin.Context) {
	var req PasswordResetConfirmRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, salt, err := security.NewPasswordHash(req.NewPassword)
	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	userID, err := h.users.ResetPassword(cctx, security.HashResetCode(req.Code), hash, salt)
	if err != nil {
		if errors.Is(err, user.ErrResetCodeNotFound) {
			RespondBadRequest(ctx, "Reset code is invalid or expired", gin.H{"field": "code"})
			return
		}
		respondServiceError(ctx, h.log, "users.reset_password", err)
		return
	}

	if err := h.sessions.InvalidateAll(cctx, userID); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate_all", err)
		return
	}

	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindPasswordChanged, UserID: userID,
	})

	ctx.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

func (h *AuthHandler) startSession(ctx *gin.Context, cctx context.Context, u user.User, remember bool) {
	sess, err := h.sessions.Create(cctx, u, remember)
	if err != nil {
		respondServiceError(ctx, h.log, "sessions.create", err)
		return
	}

	ctx.JSON(http.StatusOK, newSessionView(sess, u, h.currency))
}
