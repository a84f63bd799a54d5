package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// Idle is how long a client's limiter is kept after its last request
	Idle time.Duration
	// Skip exempts paths such as liveness checks
	Skip []string
}

// DefaultRateLimitConfig returns the rate limit applied to the control surface.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		Idle:              10 * time.Minute,
		Skip:              []string{"/", "/health"},
	}
}

func skipSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// RateLimit creates a per-IP rate limiting middleware. Limiters of clients
// that stay quiet for cfg.Idle are evicted.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	idle := cfg.Idle
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	clients := cache.New(idle, 2*idle)
	skip := skipSet(cfg.Skip)

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		ip := c.ClientIP()

		var limiter *rate.Limiter
		if v, found := clients.Get(ip); found {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			// Lost races hand out a fresh limiter once; harmless.
			if err := clients.Add(ip, limiter, cache.DefaultExpiration); err != nil {
				if v, found := clients.Get(ip); found {
					limiter = v.(*rate.Limiter)
				}
			}
		}
		clients.SetDefault(ip, limiter)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	skip := skipSet(cfg.Skip)

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
