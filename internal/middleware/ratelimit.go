package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// RateLimiter allows each client IP a burst of requests refilled evenly over window.
// Idle clients are forgotten after one window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.LRU[string, *rate.Limiter]
	every    rate.Limit
	burst    int
}

func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	return &RateLimiter{
		limiters: lru.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, window),
		every:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters.Get(ip)
	if !ok {
		l = rate.NewLimiter(rl.every, rl.burst)
	}
	// Re-adding refreshes the idle expiry.
	rl.limiters.Add(ip, l)
	return l
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try again later"})
			return
		}
		c.Next()
	}
}
