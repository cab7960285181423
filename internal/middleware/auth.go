package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"liveclass-backend/pkg/jwt"
	"liveclass-backend/pkg/response"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "user_id"
	ContextName   = "name"
	ContextRole   = "role"
)

// AuthMiddleware validates the LMS bearer token and sets user_id, name and
// role in the Gin context. Browsers cannot set headers on a websocket
// handshake, so an access_token query parameter is accepted as well.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextName, claims.Name)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("access_token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireRole aborts with 403 unless the caller has one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "Insufficient role")
		c.Abort()
	}
}
