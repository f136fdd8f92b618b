package middlewares

import (
	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/gin-gonic/gin"
)

const (
	CtxRequestID = "request_id"
	ctxSession   = "auth.session"
	ctxUser      = "auth.user"
)

// SetIdentity stashes the resolved session and its user on the gin context.
func SetIdentity(c *gin.Context, s session.Session, u user.User) {
	c.Set(ctxSession, s)
	c.Set(ctxUser, u)
}

func SessionFromContext(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return session.Session{}, false
	}
	s, ok := v.(session.Session)
	return s, ok
}

func UserFromContext(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(ctxUser)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	u, ok := UserFromContext(c)
	if !ok || u.ID == "" {
		return "", false
	}
	return u.ID, true
}

// RoleFromContext returns the role snapshotted on the session, not the live one.
func RoleFromContext(c *gin.Context) (user.Role, bool) {
	s, ok := SessionFromContext(c)
	if !ok || s.Role == "" {
		return "", false
	}
	return s.Role, true
}

func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(CtxRequestID)
}
