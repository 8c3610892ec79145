package middleware

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimit is a per-client token bucket. Clients are keyed by the
// authenticated learner when there is one, else by IP. Idle buckets are
// dropped until ctx is done.
func RateLimit(ctx context.Context, r rate.Limit, b int) gin.HandlerFunc {
	limiters := &sync.Map{}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
				limiters.Range(func(k, v interface{}) bool {
					if v.(*clientLimiter).lastSeen.Load() < cutoff {
						limiters.Delete(k)
					}
					return true
				})
			}
		}
	}()

	get := func(key string) *rate.Limiter {
		v, _ := limiters.LoadOrStore(key, &clientLimiter{limiter: rate.NewLimiter(r, b)})
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(time.Now().UnixNano())
		return cl.limiter
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := GetLearnerID(c); id != "" {
			key = "learner:" + id
		}
		if !get(key).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
