package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs every request through zap, tagged with the
// operator when one is logged in. Login requests never log the
// operator field so a failed attempt cannot leak the submitted name.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if path != "/login" {
			if operator, ok := c.Get(operatorContextKey); ok {
				fields = append(fields, zap.String("operator", operator.(string)))
			}
		}

		switch {
		case status >= 500:
			log.Error("server error", fields...)
		case status >= 400:
			log.Warn("client error", fields...)
		case path == "/favicon.ico":
			// Browsers hammer this one; not worth a line per hit.
		default:
			// Chart and API reads log at Debug to keep the files quiet.
			log.Debug("request served", fields...)
		}
	}
}
