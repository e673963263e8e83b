package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/IstFranco/utn-events/internal/config"
)

// recorder tees the response into a bounded buffer.
type recorder struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (r *recorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
    if room := r.limit - r.size; r.limit <= 0 {
        r.buf.Write(b)
    } else if room > 0 {
        r.buf.Write(b[:min(int64(len(b)), room)])
    }
    r.size += int64(len(b))
    return r.ResponseWriter.Write(b)
}

func (r *recorder) overflowed() bool { return r.limit > 0 && r.size > r.limit }

// cachedResponse is what gets stored under a cache key.
type cachedResponse struct {
    Status int         `json:"s"`
    Header http.Header `json:"h"`
    Body   []byte      `json:"b"`
}

// cacheKeyFrom builds a stable key honoring prefix and strategy.  The
// concrete request path is used, never the route pattern, since the
// cached catalog route differs only by its path parameter.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    path := r.URL.Path
    query := r.URL.Query().Encode() // sorted, so ?a=1&b=2 and ?b=2&a=1 share an entry

    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "path":
        parts = []string{"path", path}
    case "method_path":
        parts = []string{"method", r.Method, "path", path}
    case "method_path_query":
        parts = []string{"method", r.Method, "path", path, "q", query}
    default: // "path_query"
        parts = []string{"path", path, "q", query}
    }
    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// skipReplayHeader reports headers that belong to the original request
// and must not be replayed on a hit.
func skipReplayHeader(k string) bool {
    switch http.CanonicalHeaderKey(k) {
    case "Content-Length", "X-Cache", echo.HeaderXRequestID:
        return true
    }
    return false
}

func replay(c echo.Context, cr cachedResponse) error {
    h := c.Response().Header()
    for k, vals := range cr.Header {
        if skipReplayHeader(k) {
            continue
        }
        for _, v := range vals {
            h.Add(k, v)
        }
    }
    h.Set("X-Cache", "HIT")
    c.Response().WriteHeader(cr.Status)
    if len(cr.Body) > 0 {
        _, err := c.Response().Write(cr.Body)
        return err
    }
    return nil
}

// NewRedisCache caches successful responses in Redis, headers and body,
// so a hit replays exactly what the handler wrote.  Responses larger
// than MaxBodyBytes are not stored.  Redis errors degrade to a miss.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 5 * time.Minute
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            key := cacheKeyFrom(cfg, c)

            if bs, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
                var cr cachedResponse
                if json.Unmarshal(bs, &cr) == nil && cr.Status != 0 {
                    return replay(c, cr)
                }
            }

            rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if rec.status != http.StatusOK || rec.overflowed() {
                return nil
            }

            payload, err := json.Marshal(cachedResponse{
                Status: rec.status,
                Header: c.Response().Header().Clone(),
                Body:   rec.buf.Bytes(),
            })
            if err == nil {
                // the request context may already be done
                _ = rdb.SetEx(context.Background(), key, payload, ttl).Err()
            }
            return nil
        }
    }
}
