package middleware

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through only when the authenticated caller holds one of allowed.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle, role := Caller(c)
		if role == "" || !slices.Contains(allowed, role) {
			slog.Default().Warn("role denied", "handle", handle, "role", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
