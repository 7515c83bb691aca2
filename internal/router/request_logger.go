package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

// RequestLogger logs every request with zap. Requests that passed
// AuthRequired also carry the account they were made for, so a session's
// traffic can be traced through the log.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if v, ok := c.Get("user"); ok {
			if user, ok := v.(*models.User); ok {
				fields = append(fields, zap.String("user_id", user.UserID))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("Server error", fields...)
		case status >= 400:
			log.Warn("Client error", fields...)
		default:
			// Keystroke batches arrive every few seconds per active typist,
			// so successful requests stay at Debug.
			log.Debug("Request processed", fields...)
		}
	}
}
