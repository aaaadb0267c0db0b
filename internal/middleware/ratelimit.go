package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/swstarter/core/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	defaultRateLimit = 50
	rateLimitWindow  = time.Second
	rateLimitPrefix  = "swstarter:rate_limit:"
)

// RateLimit returns a middleware enforcing a fixed one-second window of limit
// requests per client IP (limit <= 0 means 50). Redis errors let the request through.
func RateLimit(rdb *redis.Client, limit int, log *zap.Logger) gin.HandlerFunc {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%s%s:%d", rateLimitPrefix, ip, time.Now().Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > int64(limit) {
			c.Header("Retry-After", "1")
			response.TooManyRequests(c, "Too many requests, slow down")
			return
		}

		c.Next()
	}
}
