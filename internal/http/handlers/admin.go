package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AdminHandler struct {
	users          UserStore
	sessions       SessionService
	twoFactor      TwoFactor
	reconciler     Reconciler
	notifier       Notifier
	currency       currency.Config
	deletionSecret string
	log            *slog.Logger
}

func NewAdminHandler(d Deps) *AdminHandler {
	d = d.withDefaults()
	return &AdminHandler{
		users:          d.Users,
		sessions:       d.Sessions,
		twoFactor:      d.TwoFactor,
		reconciler:     d.Reconciler,
		notifier:       d.Notifier,
		currency:       d.Currency,
		deletionSecret: d.AdminDeletionSecret,
		log:            d.Log,
	}
}

// DeletionEnabled reports whether DeleteUser may be routed at all.
func (h *AdminHandler) DeletionEnabled() bool {
	return h.deletionSecret != ""
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin root"`
}

type AdminDeleteUserRequest struct {
	DeletionSecret string `json:"deletionSecret" binding:"required"`
	Password       string `json:"password" binding:"required"`
	Code           string `json:"code"`
}

// repairs reports whether a reconcile request may write. GET only audits;
// POST appends corrective entries for drifted users.
func repairs(ctx *gin.Context) bool {
	return ctx.Request.Method == http.MethodPost
}

func (h *AdminHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	users, err := h.users.List(cctx)
	if err != nil {
		respondServiceError(ctx, h.log, "users.list", err)
		return
	}

	items := make([]UserView, 0, len(users))
	for _, u := range users {
		items = append(items, newUserView(u, h.currency))
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"users": items, "count": len(items)})
}

// ReconcileAll audits every user. Served on POST, drifted users get a
// corrective ledger entry.
func (h *AdminHandler) ReconcileAll(ctx *gin.Context) {
	autoFix := repairs(ctx)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 60*time.Second)
	defer cancel()

	audits, err := h.reconciler.VerifyAll(cctx, autoFix)
	if err != nil {
		respondServiceError(ctx, h.log, "reconcile.all", err)
		return
	}

	drifted, fixed := 0, 0
	for _, a := range audits {
		if a.Drift != 0 {
			drifted++
		}
		if a.Fixed {
			fixed++
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"audits":  h.auditViews(audits),
		"audited": len(audits),
		"drifted": drifted,
		"fixed":   fixed,
		"autoFix": autoFix,
	})
}

func (h *AdminHandler) ReconcileUser(ctx *gin.Context) {
	id, ok := pathUserID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	a, err := h.reconciler.VerifyBalance(cctx, id, repairs(ctx))
	if err != nil {
		respondServiceError(ctx, h.log, "reconcile.user", err)
		return
	}

	ctx.JSON(http.StatusOK, newAuditView(a, h.currency))
}

// UpdateRole needs the caller to outrank both the target's current role and
// the requested one. The target's sessions end so the new role takes effect.
func (h *AdminHandler) UpdateRole(ctx *gin.Context) {
	var req UpdateRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	id, ok := pathUserID(ctx)
	if !ok {
		return
	}

	actor, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	if actor.ID == id {
		RespondForbidden(ctx, "You cannot change your own role")
		return
	}

	newRole, err := user.ParseRole(req.Role)
	if err != nil {
		RespondBadRequest(ctx, "Unknown role", gin.H{"field": "role"})
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	target, err := h.users.GetByID(cctx, id)
	if err != nil {
		respondServiceError(ctx, h.log, "users.get_by_id", err)
		return
	}

	if !actor.Role.CanManageRole(target.Role) || !actor.Role.CanManageRole(newRole) {
		respondServiceError(ctx, h.log, "users.update_role", user.ErrCannotManageRole)
		return
	}

	if err := h.users.UpdateRole(cctx, id, newRole); err != nil {
		respondServiceError(ctx, h.log, "users.update_role", err)
		return
	}

	if err := h.sessions.InvalidateAll(cctx, id); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate_all", err)
		return
	}

	h.log.InfoContext(cctx, "role changed", "target_id", id, "from", target.Role, "to", newRole)

	target.Role = newRole
	ctx.JSON(http.StatusOK, newUserView(target, h.currency))
}

// DeleteUser is only routed when a deletion secret is configured. The caller
// re-proves their own password and second factor.
func (h *AdminHandler) DeleteUser(ctx *gin.Context) {
	var req AdminDeleteUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	id, ok := pathUserID(ctx)
	if !ok {
		return
	}

	actor, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return
	}

	if !h.DeletionEnabled() || subtle.ConstantTimeCompare([]byte(req.DeletionSecret), []byte(h.deletionSecret)) != 1 {
		RespondForbidden(ctx, "Invalid deletion secret")
		return
	}

	if !security.VerifyPassword(actor, req.Password) {
		respondInvalidCredentials(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	if !checkSecondFactor(ctx, cctx, h.twoFactor, h.notifier, h.log, actor, req.Code) {
		return
	}

	if actor.ID == id {
		RespondForbidden(ctx, "Use account deletion to remove your own account")
		return
	}

	target, err := h.users.GetByID(cctx, id)
	if err != nil {
		respondServiceError(ctx, h.log, "users.get_by_id", err)
		return
	}

	if !actor.Role.CanManageRole(target.Role) {
		respondServiceError(ctx, h.log, "users.delete", user.ErrCannotManageRole)
		return
	}

	if err := h.sessions.InvalidateAll(cctx, id); err != nil {
		respondServiceError(ctx, h.log, "sessions.invalidate_all", err)
		return
	}

	if err := h.users.Delete(cctx, id); err != nil {
		respondServiceError(ctx, h.log, "users.delete", err)
		return
	}

	h.log.WarnContext(cctx, "account deleted by admin", "target_id", id)
	h.notifier.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindAccountDeleted, UserID: target.ID, Email: target.Email,
	})

	ctx.Status(http.StatusNoContent)
}

func (h *AdminHandler) auditViews(audits []ledger.Audit) []AuditView {
	out := make([]AuditView, 0, len(audits))
	for _, a := range audits {
		out = append(out, newAuditView(a, h.currency))
	}
	return out
}

func pathUserID(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		RespondBadRequest(ctx, "id must be a valid UUID", gin.H{"field": "id", "value": id})
		return "", false
	}
	return id, true
}
