package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/pkg/response"
)

const pingTimeout = 2 * time.Second

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func RegisterRoutes(rg *gin.RouterGroup, redis Pinger, started time.Time) {
	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		redisOK := redis.Ping(ctx) == nil

		status := "ok"
		code := http.StatusOK
		if !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"redis":     redisOK,
			"uptime":    time.Since(started).Seconds(),
			"timestamp": response.ISOTime(time.Now()),
		})
	})
}
