package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"payhook/internal/shared/response"
	"payhook/pkg/jwt"
)

// AdminAuth guards operator routes with a bearer token.
// Tokens are issued out-of-band; only the "admin" role passes.
func AdminAuth(manager *jwt.Manager) gin.HandlerFunc {
	return tokenAuth(manager, "admin")
}

// ServiceAuth guards merchant API routes; both service and admin
// tokens pass
func ServiceAuth(manager *jwt.Manager) gin.HandlerFunc {
	return tokenAuth(manager, "service", "admin")
}

func tokenAuth(manager *jwt.Manager, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := manager.ValidateToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		allowed := false
		for _, role := range roles {
			if claims.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			response.Forbidden(c, "insufficient role")
			c.Abort()
			return
		}

		c.Set("actor", claims.Subject)
		c.Next()
	}
}
