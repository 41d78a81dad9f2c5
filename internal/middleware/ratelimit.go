package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/response"
)

// RateLimiter implements a Redis fixed-window rate limit
type RateLimiter struct {
	redisClient *redis.Client
	scope       string
	requests    int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a new rate limiter.
// scope separates the counters of different routes.
func NewRateLimiter(redisClient *redis.Client, scope string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		scope:       scope,
		requests:    requests,
		window:      window,
		now:         time.Now,
	}
}

// Middleware returns a Gin middleware for rate limiting.
// Authenticated callers are limited per participant, others per client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if id := c.GetString(ContextUserID); id != "" {
			identifier = "participant:" + id
		}

		windowStart := rl.windowStart()
		count, err := rl.increment(c.Request.Context(), rl.key(identifier, windowStart))
		if err != nil {
			// fail open
			logger.FromContext(c.Request.Context()).Warn("Rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(windowStart.Add(rl.window).Unix(), 10))

		if int(count) > rl.requests {
			response.Error(c, http.StatusTooManyRequests, string(errors.ErrCodeRateLimited), "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) windowStart() time.Time {
	return rl.now().Truncate(rl.window)
}

func (rl *RateLimiter) key(identifier string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", rl.scope, identifier, windowStart.Unix())
}

func (rl *RateLimiter) increment(ctx context.Context, key string) (int64, error) {
	pipe := rl.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return incr.Val(), nil
}
