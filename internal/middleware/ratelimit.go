package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/IstFranco/utn-events/internal/config"
)

// takeToken refills the bucket at KEYS[1] by whole intervals and tries
// to take one token.  ARGV: now_ms, capacity, refill, interval_ms,
// ttl_s.  Returns {allowed, tokens_left, retry_after_ms}.
var takeToken = redis.NewScript(`
local now, cap, refill, every, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens, ts = tonumber(b[1]) or cap, tonumber(b[2]) or now

local steps = math.floor(math.max(0, now - ts) / every)
if steps > 0 then
    tokens = math.min(cap, tokens + steps * refill)
    ts = ts + steps * every
end

local ok, wait = 0, math.max(0, every - (now - ts))
if tokens >= 1 then
    ok, wait, tokens = 1, 0, tokens - 1
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// decision is the parsed script result.
type decision struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

func parseDecision(v any) (decision, bool) {
    arr, ok := v.([]interface{})
    if !ok || len(arr) != 3 {
        return decision{}, false
    }
    return decision{
        allowed:   asInt64(arr[0]) == 1,
        remaining: asInt64(arr[1]),
        retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, true
}

// NewTokenBucket limits the write and voting routes with a Redis token
// bucket per requester.  Without Redis, or when disabled, it passes
// every request through; Redis errors fail open as well.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttlSeconds := int64(cfg.TTL / time.Second)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            raw, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(), ttlSeconds).Result()
            if err != nil {
                c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
                return next(c)
            }
            d, ok := parseDecision(raw)
            if !ok {
                c.Logger().Warnf("ratelimit: unexpected script result for key=%s: %#v", key, raw)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if d.allowed {
                return next(c)
            }

            secs := max(1, int(math.Ceil(d.retry.Seconds())))
            h.Set("Retry-After", strconv.Itoa(secs))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "too_many_requests",
                "message":     "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

// buildRateKey joins the parts selected by cfg.KeyStrategy.  The route
// part uses the registered pattern so /v1/songs/1/votes and
// /v1/songs/2/votes share one bucket per voter.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    who := requesterKey(c)
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "voter":
        parts = append(parts, "who", who)
    case "route":
        parts = append(parts, "route", route)
    case "ip_voter":
        parts = append(parts, "ip", ip, "who", who)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "voter_route":
        parts = append(parts, "who", who, "route", route)
    default:
        parts = append(parts, "ip", ip, "who", who, "route", route)
    }
    return strings.Join(parts, ":")
}
