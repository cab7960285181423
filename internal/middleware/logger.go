package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass-backend/pkg/logger"
)

// RequestLogger logs HTTP requests with request ID
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		}
		if userID := c.GetString(ContextUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch {
		case statusCode >= 500:
			logger.Error("HTTP request", fields...)
		case statusCode >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}
