package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit 基于令牌桶的 IP 限流中间件。
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 60
	}

	var (
		mu       sync.Mutex
		limiters = map[string]*ipLimiter{}
	)
	interval := rate.Every(time.Minute / time.Duration(perMinute))
	burst := perMinute / 2
	if burst < 1 {
		burst = 1
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		entry, ok := limiters[ip]
		if !ok {
			entry = &ipLimiter{limiter: rate.NewLimiter(interval, burst)}
			limiters[ip] = entry
		}
		entry.lastSeen = time.Now()

		// 顺带清理十分钟未出现的来源，避免表无限增长
		if len(limiters) > 10000 {
			cutoff := time.Now().Add(-10 * time.Minute)
			for key, value := range limiters {
				if value.lastSeen.Before(cutoff) {
					delete(limiters, key)
				}
			}
		}
		mu.Unlock()

		if !entry.limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, "请求过于频繁")
			c.Abort()
			return
		}
		c.Next()
	}
}
