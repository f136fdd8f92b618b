package handlers

import (
	"context"
	"log/slog"

	tfa "github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/gin-gonic/gin"
)

// checkSecondFactor gates a sensitive action on a fresh code. Accounts without
// 2FA pass straight through. On rejection the response is already written.
func checkSecondFactor(ctx *gin.Context, cctx context.Context, tf TwoFactor, n Notifier, log *slog.Logger, u user.User, code string) bool {
	res, err := tf.Verify(cctx, u, code)
	if err != nil {
		respondServiceError(ctx, log, "twofactor.verify", err)
		return false
	}
	if !res.OK() {
		c, msg := secondFactorMessage(res)
		RespondUnauthorized(ctx, c, msg)
		return false
	}

	noteRecoveryUse(ctx, n, u, res)
	return true
}

func noteRecoveryUse(ctx *gin.Context, n Notifier, u user.User, res tfa.Result) {
	if res != tfa.ValidRecovery {
		return
	}
	n.Notify(ctx.Request.Context(), notifications.Notice{
		Kind: notifications.KindRecoveryCodeUsed, UserID: u.ID, Email: u.Email,
	})
}
