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
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	reasonAdminAdjust = "admin_adjust"
	reasonAdminSet    = "admin_set"
)

var errInvalidTarget = errors.New("specify exactly one of userId or email")

type CurrencyHandler struct {
	users  UserStore
	ledger Ledger
	log    *slog.Logger
}

func NewCurrencyHandler(d Deps) *CurrencyHandler {
	d = d.withDefaults()
	return &CurrencyHandler{users: d.Users, ledger: d.Ledger, log: d.Log}
}

type BalanceQuery struct {
	UserID string `form:"user_id"`
}

type LedgerQuery struct {
	UserID string `form:"user_id"`
	// Absent means the default page size; an explicit value must be 1-500.
	Limit *int `form:"limit"`
	// Unix seconds, exclusive.
	Before *int64 `form:"before"`
	After  *int64 `form:"after"`
}

// MutationRequest names its target by id or by email, never both.
type MutationRequest struct {
	UserID   string            `json:"userId"`
	Email    string            `json:"email"`
	Amount   *decimal.Decimal  `json:"amount" binding:"required"`
	Reason   string            `json:"reason" binding:"max=200"`
	Metadata map[string]string `json:"metadata" binding:"max=20"`
}

type BalanceResponse struct {
	UserID    string          `json:"userId"`
	Balance   currency.Amount `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type MutationResponse struct {
	Entry   EntryView       `json:"entry"`
	Balance currency.Amount `json:"balance"`
}

func (h *CurrencyHandler) Balance(ctx *gin.Context) {
	var q BalanceQuery

	if !BindQuery(ctx, &q) {
		return
	}

	userID, ok := h.readableUser(ctx, q.UserID)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	b, err := h.ledger.Balance(cctx, userID)
	if err != nil {
		respondServiceError(ctx, h.log, "ledger.balance", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, BalanceResponse{
		UserID:    b.UserID,
		Balance:   h.ledger.Currency().Amount(b.Balance),
		UpdatedAt: b.UpdatedAt,
	})
}

func (h *CurrencyHandler) Ledger(ctx *gin.Context) {
	var q LedgerQuery

	if !BindQuery(ctx, &q) {
		return
	}

	userID, ok := h.readableUser(ctx, q.UserID)
	if !ok {
		return
	}

	f := ledger.ListFilter{Limit: ledger.DefaultListLimit}
	if q.Limit != nil {
		if *q.Limit < 1 {
			respondServiceError(ctx, h.log, "ledger.list", ledger.ErrInvalidLimit)
			return
		}
		f.Limit = *q.Limit
	}
	if q.Before != nil {
		t := time.Unix(*q.Before, 0).UTC()
		f.Before = &t
	}
	if q.After != nil {
		t := time.Unix(*q.After, 0).UTC()
		f.After = &t
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.ledger.List(cctx, userID, f)
	if err != nil {
		respondServiceError(ctx, h.log, "ledger.list", err)
		return
	}

	cur := h.ledger.Currency()
	items := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, newEntryView(e, cur))
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"userId":  userID,
		"entries": items,
		"count":   len(items),
	})
}

func (h *CurrencyHandler) Adjust(ctx *gin.Context) {
	h.mutate(ctx, reasonAdminAdjust, h.ledger.Adjust)
}

func (h *CurrencyHandler) Set(ctx *gin.Context) {
	h.mutate(ctx, reasonAdminSet, h.ledger.Set)
}

type mutateFunc func(ctx context.Context, userID string, amount int64, memo ledger.Memo) (ledger.Entry, error)

func (h *CurrencyHandler) mutate(ctx *gin.Context, defaultReason string, apply mutateFunc) {
	var req MutationRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	target, err := h.resolveTarget(cctx, req)
	if err != nil {
		if errors.Is(err, errInvalidTarget) {
			RespondUnprocessable(ctx, err.Error(), gin.H{"fields": []string{"userId", "email"}})
			return
		}
		respondServiceError(ctx, h.log, "users.resolve_target", err)
		return
	}

	cur := h.ledger.Currency()
	minor, err := cur.MajorToMinor(*req.Amount)
	if err != nil {
		respondServiceError(ctx, h.log, "currency.convert", err)
		return
	}

	memo := ledger.Memo{Reason: strings.TrimSpace(req.Reason), Metadata: req.Metadata}
	if memo.Reason == "" {
		memo.Reason = defaultReason
	}
	if actorID, ok := middlewares.UserIDFromContext(ctx); ok {
		memo.ActorUserID = &actorID
	}

	entry, err := apply(cctx, target, minor, memo)
	if err != nil {
		respondServiceError(ctx, h.log, "ledger."+defaultReason, err)
		return
	}

	ctx.JSON(http.StatusOK, MutationResponse{
		Entry:   newEntryView(entry, cur),
		Balance: cur.Amount(entry.BalanceAfter),
	})
}

// resolveTarget turns the userId/email pair into a user id. A malformed pair
// is errInvalidTarget; an unknown email is user.ErrNotFound.
func (h *CurrencyHandler) resolveTarget(ctx context.Context, req MutationRequest) (string, error) {
	id := strings.TrimSpace(req.UserID)
	email := strings.TrimSpace(req.Email)

	switch {
	case id != "" && email == "":
		if _, err := uuid.Parse(id); err != nil {
			return "", errInvalidTarget
		}
		return id, nil
	case email != "" && id == "":
		if !strings.Contains(email, "@") {
			return "", errInvalidTarget
		}
		u, err := h.users.GetByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		return u.ID, nil
	default:
		return "", errInvalidTarget
	}
}

// readableUser picks the ledger owner for a read. Other users' ledgers need
// admin or better.
func (h *CurrencyHandler) readableUser(ctx *gin.Context, requested string) (string, bool) {
	self, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Authentication required")
		return "", false
	}

	requested = strings.TrimSpace(requested)
	if requested == "" || requested == self {
		return self, true
	}

	role, _ := middlewares.RoleFromContext(ctx)
	if !role.AtLeast(user.RoleAdmin) {
		RespondForbidden(ctx, "Admin role required to read another user's balance")
		return "", false
	}

	if _, err := uuid.Parse(requested); err != nil {
		RespondBadRequest(ctx, "user_id must be a valid UUID", gin.H{"field": "user_id"})
		return "", false
	}

	return requested, true
}
