package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/riyak972/capstone-chat/internal/domain"
	"golang.org/x/time/rate"
)

// rateLimitScript is a token bucket refilled continuously at rate tokens per second.
const rateLimitScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0

if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HMSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, 86400)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`

// RateLimitConfig allows max requests per window for each caller.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Now overrides the clock used for bucket refills.
	Now func() time.Time
}

func (cfg RateLimitConfig) perSecond() float64 {
	if cfg.Window <= 0 {
		return float64(cfg.Max)
	}
	return float64(cfg.Max) / cfg.Window.Seconds()
}

// RedisRateLimit limits callers with a token bucket kept in Redis. Callers
// are keyed by user when authenticated, otherwise by client IP. When Redis is
// unreachable requests are let through.
func RedisRateLimit(client *redis.Client, cfg RateLimitConfig) echo.MiddlewareFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	capacity := cfg.Max
	perSecond := cfg.perSecond()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "rate_limit:" + callerKey(c)
			ts := float64(now().UnixNano()) / 1e9

			result, err := client.Eval(c.Request().Context(), rateLimitScript,
				[]string{key}, capacity, perSecond, ts, 1).Result()
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request", "error", err)
				return next(c)
			}

			allowed := int64(0)
			remaining := capacity
			retryAfter := 0
			if arr, ok := result.([]any); ok && len(arr) >= 3 {
				if v, ok := arr[0].(int64); ok {
					allowed = v
				}
				if v, ok := arr[1].(int64); ok {
					remaining = int(v)
				}
				if v, ok := arr[2].(int64); ok {
					retryAfter = int(v)
				}
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(capacity))
			if allowed == 0 {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return tooManyRequests(c)
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			return next(c)
		}
	}
}

// MemoryRateLimit limits callers with echo's in-process store. It is used
// when no Redis address is configured.
func MemoryRateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.perSecond()),
		Burst:     cfg.Max,
		ExpiresIn: 3 * time.Minute,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return callerKey(c), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return tooManyRequests(c)
		},
	})
}

func callerKey(c echo.Context) string {
	if id := UserID(c); id != "" {
		return "user:" + id
	}
	return "ip:" + c.RealIP()
}

func tooManyRequests(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, map[string]string{
		"code":  string(domain.CodeRateLimited),
		"error": "Too many requests, please try again later.",
	})
}
