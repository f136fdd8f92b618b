package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/accountcore/internal/actorctx"
	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// Keep these small so tests can fake them easily.
type SessionResolver interface {
	Lookup(ctx context.Context, token string) (session.Session, error)
	Touch(ctx context.Context, s session.Session, role user.Role) (session.Session, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	sessions SessionResolver
	users    UserLoader
	log      *slog.Logger
}

func NewAuthMiddleware(sessions SessionResolver, users UserLoader, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{sessions: sessions, users: users, log: log}
}

// RequireSession resolves the bearer token to a live session and its user.
// Expired, unknown and orphaned sessions all answer 401.
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		ctx := c.Request.Context()

		sess, err := m.sessions.Lookup(ctx, token)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				m.log.ErrorContext(ctx, "session lookup failed", "err", err)
				abortInternal(c)
				return
			}
			abortUnauthorized(c, "Invalid or expired session")
			return
		}

		u, err := m.users.GetByID(ctx, sess.UserID)
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				m.log.ErrorContext(ctx, "session user lookup failed", "err", err)
				abortInternal(c)
				return
			}
			abortUnauthorized(c, "Invalid or expired session")
			return
		}

		// activity extends the window; a failure here must not block the request
		touched, err := m.sessions.Touch(ctx, sess, u.Role)
		switch {
		case errors.Is(err, session.ErrNotFound):
			abortUnauthorized(c, "Invalid or expired session")
			return
		case err != nil:
			m.log.WarnContext(ctx, "session extend failed", "err", err)
		default:
			sess = touched
		}

		SetIdentity(c, sess, u)
		c.Request = c.Request.WithContext(actorctx.WithUserID(ctx, u.ID))

		c.Next()
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(h[7:])
	return raw, raw != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	abortWith(c, http.StatusUnauthorized, "unauthorized", msg)
}

func abortInternal(c *gin.Context) {
	abortWith(c, http.StatusInternalServerError, "internal_error", "Something went wrong")
}
