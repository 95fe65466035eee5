package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-intelligence/pkg/logger"
)

// UserHeader carries the caller's identity. Authentication happens in
// front of this service.
const UserHeader = "X-User-ID"

const userKey = "user_id"

// RequireUser rejects requests without a user id and stores it on the
// context for handlers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing " + UserHeader + " header",
				"message": "Authentication required",
			})
			return
		}
		c.Set(userKey, id)
		c.Next()
	}
}

// UserID returns the id RequireUser stored, or "".
func UserID(c *gin.Context) string {
	return c.GetString(userKey)
}

// RequestLogger logs one line per request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		}
		if id := UserID(c); id != "" {
			fields = append(fields, logger.String("user_id", id))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("Request failed", fields...)
			return
		}
		log.Debug("Request served", fields...)
	}
}
