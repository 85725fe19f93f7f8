package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/utils"
)

// RateLimitMiddleware enforces a fixed-window per-user, per-route budget
// backed by Redis. With no Redis client the limiter is a no-op; losing the
// limiter must not take down exam traffic.
func RateLimitMiddleware(client *redis.Client, cfg config.RateLimitConfig, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			subject = fmt.Sprintf("%v", userID)
		}
		key := fmt.Sprintf("ratelimit:%s:%s:%s", subject, c.Request.Method, c.FullPath())

		ctx := c.Request.Context()
		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(ctx, key, cfg.Window)
		}

		if count > int64(cfg.Requests) {
			ttl, _ := client.TTL(ctx, key).Result()
			retryAfter := int(ttl.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Message: "Too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
