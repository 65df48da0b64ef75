package middleware

import (
	"net/http"
	"strings"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	CtxHandle = "user_handle"
	CtxRole   = "user_role"
)

// RequireAuth accepts a bearer token, or an access_token query parameter for
// websocket upgrades where browsers cannot set headers.
func RequireAuth(jwt *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && c.Request.Method == http.MethodGet {
			token = strings.TrimSpace(c.Query("access_token"))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := jwt.Parse(token)
		if err != nil || claims.Type != auth.TokenTypeAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(CtxHandle, claims.Handle)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Caller returns the authenticated handle and role set by RequireAuth.
func Caller(c *gin.Context) (handle, role string) {
	return c.GetString(CtxHandle), c.GetString(CtxRole)
}
