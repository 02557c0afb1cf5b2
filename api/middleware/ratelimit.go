package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/replypilot/replypilot/interfaces"
)

const (
	rateLimitPerMinute = 100
	rateLimitWindow    = time.Minute
)

// RateLimit rejects clients exceeding the per-IP request budget.
func RateLimit(governor interfaces.GovernorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !governor.RateLimit("ip:"+c.ClientIP(), rateLimitPerMinute, rateLimitWindow) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMIT_EXCEEDED",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
