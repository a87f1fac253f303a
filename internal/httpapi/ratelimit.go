package httpapi

import (
	"net/http"
	"time"

	"empathy-ledger/pkg/logger"
	"empathy-ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimit throttles the public embed surface per client IP using a Redis
// fixed window. Fail-open: if Redis is unreachable the request proceeds —
// the embed surface must not gain Redis as an availability dependency.
//
// Note this limits request volume only. Consent decisions themselves are
// never cached here or anywhere else.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := "ratelimit:embed:" + c.ClientIP()
		ok, err := utils.AllowRate(c.Request.Context(), rdb, key, limit, window)
		if err != nil {
			logger.FromGin(c).Warn("rate limit check failed", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", window.String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
