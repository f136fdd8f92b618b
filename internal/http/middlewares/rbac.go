package middlewares

import (
	"net/http"

	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// RequireRole lets through sessions whose role ranks at least min.
func RequireRole(min user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok {
			abortUnauthorized(c, "Missing identity context")
			return
		}

		if !role.AtLeast(min) {
			abortWith(c, http.StatusForbidden, "forbidden", "Insufficient privilege")
			return
		}
		c.Next()
	}
}
