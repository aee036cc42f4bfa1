package middleware

import (
	"context"
	"fmt"
	"time"

	"lessonjudge/internal/common/cache"
	"lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"
	"lessonjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiter enforces fixed-window limits using the shared cache.
type RateLimiter struct {
	cache        cache.BasicOps
	window       time.Duration
	redisTimeout time.Duration
}

// NewRateLimiter creates a limiter.
func NewRateLimiter(cacheClient cache.BasicOps, window time.Duration, redisTimeout time.Duration) *RateLimiter {
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &RateLimiter{cache: cacheClient, window: window, redisTimeout: redisTimeout}
}

// Allow counts one hit on key and fails with TooManyRequests once max is exceeded.
func (s *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if s.cache == nil {
		return errors.New(errors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = s.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, s.redisTimeout)
	defer cancel()

	acquired, err := s.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return errors.Wrapf(err, errors.CacheError, "rate limit check failed")
	}
	var count int64
	if acquired {
		count = 1
	} else {
		count, err = s.cache.Incr(ctxCache, key)
		if err != nil {
			return errors.Wrapf(err, errors.CacheError, "rate limit check failed")
		}
		// A key that lost its TTL would never reset.
		ttl, ttlErr := s.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = s.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return errors.New(errors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

// RateLimitPolicy sets per-route limits. Zero disables a dimension.
type RateLimitPolicy struct {
	Window  time.Duration `json:",optional" yaml:"window"`
	IPMax   int           `json:",optional" yaml:"ipMax"`
	UserMax int           `json:",optional" yaml:"userMax"`
}

// RateLimitMiddleware enforces per-route rate limiting. Cache failures let
// the request through.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if policy.IPMax > 0 {
			key := fmt.Sprintf("judge:rate:ip:%s:%s", c.ClientIP(), routeKey)
			if !allow(c, limiter, key, policy.IPMax, policy.Window) {
				return
			}
		}
		if policy.UserMax > 0 {
			if userID := c.GetString(UserIDContextKey); userID != "" {
				key := fmt.Sprintf("judge:rate:user:%s:%s", userID, routeKey)
				if !allow(c, limiter, key, policy.UserMax, policy.Window) {
					return
				}
			}
		}
		c.Next()
	}
}

func allow(c *gin.Context, limiter *RateLimiter, key string, max int, window time.Duration) bool {
	err := limiter.Allow(c.Request.Context(), key, max, window)
	if err == nil {
		return true
	}
	if errors.Is(err, errors.TooManyRequests) {
		response.AbortWithError(c, err)
		return false
	}
	logger.Warn(c.Request.Context(), "rate limit check skipped", zap.String("key", key), zap.Error(err))
	return true
}
