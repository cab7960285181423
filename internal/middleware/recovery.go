package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/response"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", c.GetString("request_id")),
					zap.Stack("stack"))

				response.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HealthCheck answers /health before any other middleware runs
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.JSON(http.StatusOK, gin.H{
				"status":  "healthy",
				"service": serviceName,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
