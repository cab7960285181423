package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// CORSMiddleware allows browser calls from allowedOrigins and rejects other origins
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := lo.SliceToMap(allowedOrigins, func(origin string) (string, bool) {
		return origin, true
	})

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		} else if origin != "" {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
